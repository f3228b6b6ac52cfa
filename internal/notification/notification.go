package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solwave/solwave/internal/address"
	"github.com/solwave/solwave/internal/ledger"
	"github.com/solwave/solwave/internal/session"
)

const (
	KindWalletConnected    = "wallet_connected"
	KindWalletDisconnected = "wallet_disconnected"
	KindConnectFailed      = "connect_failed"
	KindBalanceUpdated     = "balance_updated"
	KindBalanceFailed      = "balance_failed"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// SessionListener turns user-facing session transitions into notifications.
// Delivery errors are logged and never reach the controller.
func SessionListener(n Notifier, logger *slog.Logger) session.Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev session.Event) {
		msg, ok := MessageFor(ev)
		if !ok {
			return
		}
		if err := n.Send(context.Background(), msg); err != nil {
			logger.Warn("notification delivery failed", "kind", msg.Kind, "error", err)
		}
	}
}

// MessageFor maps an event to a notification, if it warrants one.
func MessageFor(ev session.Event) (Message, bool) {
	switch ev.Kind {
	case session.EventIdentityChanged:
		if ev.Session.Identity != "" {
			return Message{
				Kind:        KindWalletConnected,
				Destination: address.Short(ev.Session.Identity),
				Body:        fmt.Sprintf("connected on %s via %s", ev.Session.Network, ev.Session.Provider),
			}, true
		}
		if ev.PreviousIdentity != "" {
			return Message{
				Kind:        KindWalletDisconnected,
				Destination: address.Short(ev.PreviousIdentity),
				Body:        "wallet disconnected",
			}, true
		}
	case session.EventConnectFailed:
		body := "connect failed"
		if ev.Session.LastError != nil {
			body = ev.Session.LastError.Message
		}
		return Message{Kind: KindConnectFailed, Body: body}, true
	case session.EventBalanceUpdated:
		return Message{
			Kind:        KindBalanceUpdated,
			Destination: address.Short(ev.Balance.Identity),
			Body:        ledger.FormatSOL(ev.Balance.Lamports) + " SOL",
		}, true
	case session.EventBalanceFailed:
		body := "balance unavailable"
		if ev.Balance.Err != nil {
			body = ev.Balance.Err.Message
		}
		return Message{Kind: KindBalanceFailed, Destination: address.Short(ev.Balance.Identity), Body: body}, true
	}
	return Message{}, false
}
