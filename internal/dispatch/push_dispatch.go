package dispatch

import (
	"context"
	"errors"
	"log/slog"
)

// PushDispatcher prefers an open websocket and falls back to push delivery.
type PushDispatcher struct {
	WS       *WSRegistry
	Fallback Notifier
	logger   *slog.Logger
}

func NewPushDispatcher(ws *WSRegistry, fallback Notifier, logger *slog.Logger) *PushDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushDispatcher{WS: ws, Fallback: fallback, logger: logger}
}

func (p *PushDispatcher) Send(ctx context.Context, to Recipient, msg Message) error {
	if p.WS != nil {
		err := p.WS.Send(ctx, to, msg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoSession) {
			p.logger.Warn("ws send failed, falling back to push", "rider_id", to.RiderID, "error", err)
		}
	}
	if p.Fallback == nil {
		return ErrNoSession
	}
	return p.Fallback.Send(ctx, to, msg)
}
