package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/delivery-broadcast/internal/models"
)

// ErrConflict is returned when the backend reports the delivery was
// already taken by another driver.
var ErrConflict = errors.New("delivery already accepted by another driver")

// TokenProvider supplies the bearer token for each request, so a session
// refresh is picked up without rebuilding the client.
type TokenProvider func() string

// Client is a thin wrapper over the dashboard's REST backend.
type Client struct {
	BaseURL string
	Token   TokenProvider
	HTTP    *http.Client
}

func NewClient(baseURL string, token TokenProvider) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// listEnvelope matches the backend's {success, data} wrapper. Data stays
// raw so a malformed (non-list) payload can be coerced instead of failing.
type listEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type acceptEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type statusEnvelope struct {
	Data struct {
		IsOnline bool `json:"isOnline"`
	} `json:"data"`
}

// ListActiveBroadcasts returns the active offers for the given location.
// The response is an authoritative snapshot; a payload that is not a list
// is coerced to an empty set rather than propagated as an error.
func (c *Client) ListActiveBroadcasts(ctx context.Context, loc models.Coord) ([]models.BroadcastOffer, error) {
	url := fmt.Sprintf("%s/delivery/broadcast/active?lat=%f&lng=%f", c.BaseURL, loc.Lat, loc.Lng)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Data != nil {
		body = env.Data
	}

	var offers []models.BroadcastOffer
	if err := json.Unmarshal(body, &offers); err != nil {
		return []models.BroadcastOffer{}, nil
	}
	return offers, nil
}

// AcceptBroadcast attempts to claim the offer. Atomicity of the claim is
// entirely server-side; this call only reports the verdict. A lost race
// surfaces as ErrConflict.
func (c *Client) AcceptBroadcast(ctx context.Context, offerID string) error {
	url := fmt.Sprintf("%s/delivery/broadcast/%s/accept", c.BaseURL, offerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("accept request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrConflict, reasonOrDefault(body, "delivery already taken"))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("accept failed: status %d", resp.StatusCode)
	}

	var env acceptEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("accept response: %w", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "failed to accept delivery"
		}
		if strings.Contains(strings.ToLower(msg), "taken") || strings.Contains(strings.ToLower(msg), "accepted") {
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		}
		return errors.New(msg)
	}
	return nil
}

// DriverStatus reports whether the backend considers this driver online.
func (c *Client) DriverStatus(ctx context.Context) (bool, error) {
	body, err := c.get(ctx, c.BaseURL+"/driver/status")
	if err != nil {
		return false, err
	}
	var env statusEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false, fmt.Errorf("status response: %w", err)
	}
	return env.Data.IsOnline, nil
}

// SetDriverStatus flips the backend's online flag for this driver.
func (c *Client) SetDriverStatus(ctx context.Context, online bool) error {
	payload, _ := json.Marshal(map[string]bool{"isOnline": online})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/driver/status", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("set status: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != nil {
		if t := c.Token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}
}

func reasonOrDefault(body []byte, def string) string {
	var env acceptEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return env.Message
	}
	return def
}
