// Package bounce reconciles the subscriber list against delivery events:
// permanent bounces and complaints remove the affected recipients.
package bounce

import (
	"context"
	"fmt"
	"log/slog"

	"hackerdigest/pkg/digest"
)

// Store is the slice of storage the reconciler needs.
type Store interface {
	DeleteSubscriber(ctx context.Context, email string) error
}

// Notification is the delivery-event payload published by the mail
// provider. Exactly one of Bounce and Complaint is set depending on
// EventType.
type Notification struct {
	EventType string     `json:"eventType"`
	Bounce    *Bounce    `json:"bounce,omitempty"`
	Complaint *Complaint `json:"complaint,omitempty"`
}

// Bounce describes a bounced delivery.
type Bounce struct {
	BounceType        string      `json:"bounceType"`
	BouncedRecipients []Recipient `json:"bouncedRecipients"`
}

// Complaint describes a spam complaint.
type Complaint struct {
	ComplainedRecipients []Recipient `json:"complainedRecipients"`
}

// Recipient is one affected address within an event.
type Recipient struct {
	EmailAddress string `json:"emailAddress"`
}

// Handler applies delivery events to the subscriber list.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a delivery-event handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Handle applies one notification. Permanent bounces and complaints remove
// each affected recipient; a failure on one recipient never stops the rest.
// A notification whose declared payload is missing is an error; unknown
// event types are logged and ignored.
func (h *Handler) Handle(ctx context.Context, n *Notification) error {
	switch n.EventType {
	case "Bounce":
		if n.Bounce == nil {
			return fmt.Errorf("bounce event has no bounce payload")
		}
		if n.Bounce.BounceType != "Permanent" {
			h.logger.Info("Ignoring transient bounce", "bounce_type", n.Bounce.BounceType)
			return nil
		}
		h.removeRecipients(ctx, "bounce", n.Bounce.BouncedRecipients)
		return nil

	case "Complaint":
		if n.Complaint == nil {
			return fmt.Errorf("complaint event has no complaint payload")
		}
		h.removeRecipients(ctx, "complaint", n.Complaint.ComplainedRecipients)
		return nil

	default:
		h.logger.Info("Ignoring delivery event", "event_type", n.EventType)
		return nil
	}
}

// removeRecipients unsubscribes each recipient, isolating failures so one
// bad address cannot block the rest of the event.
func (h *Handler) removeRecipients(ctx context.Context, reason string, recipients []Recipient) {
	for _, r := range recipients {
		email := digest.NormalizeEmail(r.EmailAddress)
		if !digest.ValidEmail(email) {
			h.logger.Warn("Skipping invalid recipient address", "reason", reason)
			continue
		}
		if err := h.store.DeleteSubscriber(ctx, email); err != nil {
			h.logger.Warn("Failed to remove recipient", "email", email, "reason", reason, "error", err)
			continue
		}
		h.logger.Info("Subscriber removed by delivery event", "email", email, "reason", reason)
	}
}
