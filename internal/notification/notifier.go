// Package notification delivers report lifecycle notices to external
// collaborators. Delivery is fire-and-forget: a failed or slow notification
// never blocks or fails the transition that triggered it.
package notification

import (
	"context"
	"time"

	"github.com/gram-swasthya/platform/internal/shared/types"
	"go.uber.org/zap"
)

// Kind identifies what happened
type Kind string

const (
	KindRevisionRequested Kind = "revision_requested"
	KindEscalated         Kind = "escalated"
	KindResolved          Kind = "resolved"
)

// Notice is one outbound notification
type Notice struct {
	Kind         Kind      `json:"kind"`
	RecipientID  types.ID  `json:"recipient_id"`
	ReportID     types.ID  `json:"report_id"`
	ReportNumber string    `json:"report_number"`
	Message      string    `json:"message"`
	SentAt       time.Time `json:"sent_at"`
}

// Notifier delivers notices
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Noop discards all notices
type Noop struct{}

func (Noop) Notify(ctx context.Context, n Notice) {}

// Async wraps a notifier so delivery happens off the request path. The
// wrapped call gets its own timeout since the request context ends when the
// handler returns.
type Async struct {
	next    Notifier
	timeout time.Duration
	logger  *zap.Logger
}

// NewAsync creates an asynchronous notifier wrapper
func NewAsync(next Notifier, logger *zap.Logger) *Async {
	return &Async{next: next, timeout: 10 * time.Second, logger: logger}
}

// Notify dispatches the notice in the background
func (a *Async) Notify(_ context.Context, n Notice) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.next.Notify(ctx, n)
		a.logger.Debug("notification dispatched",
			zap.String("kind", string(n.Kind)),
			zap.String("report", n.ReportNumber),
			zap.String("recipient", n.RecipientID.String()))
	}()
}
