package notify

import "log/slog"

// Toaster surfaces user-visible advisories. The agent has no screen, so
// the default implementation logs; a UI embedding the library provides
// its own.
type Toaster interface {
	Success(msg string)
	Error(msg string)
}

// Sounder plays a named notification sound. No return value is consumed.
type Sounder interface {
	Play(name string)
}

// LogToaster writes toasts to the structured log.
type LogToaster struct {
	Logger *slog.Logger
}

func (t *LogToaster) Success(msg string) { t.Logger.Info("toast", "kind", "success", "message", msg) }
func (t *LogToaster) Error(msg string)   { t.Logger.Warn("toast", "kind", "error", "message", msg) }

// LogSounder records sound cues in the log instead of playing audio.
type LogSounder struct {
	Logger *slog.Logger
}

func (s *LogSounder) Play(name string) { s.Logger.Debug("sound", "name", name) }

// NopToaster and NopSounder silence presentation entirely. Tests mostly
// use these.
type NopToaster struct{}

func (NopToaster) Success(string) {}
func (NopToaster) Error(string)   {}

type NopSounder struct{}

func (NopSounder) Play(string) {}
