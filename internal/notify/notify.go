// Package notify tells sellers and downstream consumers about moderation
// decisions and sales. Delivery is best-effort: callers log failures and move
// on.
package notify

import (
	"context"
	"errors"
	"time"
)

type EventType string

const (
	EventListingModerated EventType = "listing.moderated"
	EventListingSold      EventType = "listing.sold"
)

type Event struct {
	Type                  EventType `json:"type"`
	ListingID             string    `json:"listingId"`
	ListingTitle          string    `json:"listingTitle"`
	SellerID              string    `json:"sellerId"`
	SellerEmail           string    `json:"sellerEmail,omitempty"`
	SellerName            string    `json:"sellerName,omitempty"`
	Status                string    `json:"status"`
	Reason                string    `json:"reason,omitempty"`
	PendingChangesApplied int       `json:"pendingChangesApplied,omitempty"`
	TransactionNumber     string    `json:"transactionNumber,omitempty"`
	ActorID               string    `json:"actorId,omitempty"`
	OccurredAt            time.Time `json:"occurredAt"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
