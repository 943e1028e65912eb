package market

import (
	"context"

	"github.com/pauljones0/komsu/internal/live"
	"github.com/pauljones0/komsu/internal/models"
	"github.com/pauljones0/komsu/internal/overlay"
)

// Store abstracts the real-time keyed store.
type Store interface {
	live.Subscriber
	overlay.Store
}

// ListingNotifier announces newly published listings.
type ListingNotifier interface {
	Send(ctx context.Context, publicID string, listing models.Listing) (string, error)
}
