package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Priority is the urgency level assigned to a broadcast by the backend.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// BroadcastOffer is a delivery open for acceptance by any eligible driver.
// Offers are owned server-side; the client only mirrors them.
type BroadcastOffer struct {
	ID               string    `json:"id"`
	PickupLocation   string    `json:"pickupLocation"`
	DeliveryLocation string    `json:"deliveryLocation"`
	CustomerName     string    `json:"customerName"`
	CustomerPhone    string    `json:"customerPhone"`
	Fee              float64   `json:"fee"`
	DriverEarning    float64   `json:"driverEarning"`
	Priority         Priority  `json:"priority"`
	BroadcastSeconds int       `json:"broadcastDuration"`
	TimeRemaining    int       `json:"timeRemaining"`
	CreatedAt        time.Time `json:"createdAt"`
}

// LocationSource records how the driver's coordinates were obtained.
type LocationSource string

const (
	SourceDevice   LocationSource = "device"
	SourceFallback LocationSource = "fallback"
)

// LocationStatus tracks the one-shot resolution lifecycle.
type LocationStatus string

const (
	LocationPending  LocationStatus = "pending"
	LocationResolved LocationStatus = "resolved"
	LocationFailed   LocationStatus = "failed"
)

// DriverLocation is the last known coordinate used to scope which offers
// are relevant, plus how and whether it was resolved.
type DriverLocation struct {
	Coord  Coord          `json:"coord"`
	Source LocationSource `json:"source"`
	Status LocationStatus `json:"status"`
}

// Push event names delivered over the websocket channel.
const (
	EventNewBroadcast     = "delivery-broadcast"
	EventAcceptedByOther  = "delivery-accepted-by-other"
	EventBroadcastRemoved = "broadcast-removed"
	EventBroadcastExpired = "broadcast-expired"
	EventNotification     = "notification"
	EventDeliveryUpdate   = "delivery_update"
	EventSystemAlert      = "system_alert"
)

// BroadcastEventPayload is the portion of broadcast-related push payloads
// this client cares about. Removal events may carry only the id.
type BroadcastEventPayload struct {
	ID               string   `json:"id"`
	DeliveryID       string   `json:"deliveryId"`
	PickupLocation   string   `json:"pickupLocation"`
	DeliveryLocation string   `json:"deliveryLocation"`
	CustomerName     string   `json:"customerName"`
	CustomerPhone    string   `json:"customerPhone"`
	Fee              float64  `json:"fee"`
	DriverEarning    float64  `json:"driverEarning"`
	Priority         Priority `json:"priority"`
	BroadcastSeconds int      `json:"broadcastDuration"`
	TimeRemaining    int      `json:"timeRemaining"`
}

// OfferID returns whichever id field the backend populated.
func (p BroadcastEventPayload) OfferID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.DeliveryID
}

// Offer converts a push payload into a displayable offer.
func (p BroadcastEventPayload) Offer() BroadcastOffer {
	return BroadcastOffer{
		ID:               p.OfferID(),
		PickupLocation:   p.PickupLocation,
		DeliveryLocation: p.DeliveryLocation,
		CustomerName:     p.CustomerName,
		CustomerPhone:    p.CustomerPhone,
		Fee:              p.Fee,
		DriverEarning:    p.DriverEarning,
		Priority:         p.Priority,
		BroadcastSeconds: p.BroadcastSeconds,
		TimeRemaining:    p.TimeRemaining,
		CreatedAt:        time.Now(),
	}
}

// Notification is one entry in the driver's recent-notification feed.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}
