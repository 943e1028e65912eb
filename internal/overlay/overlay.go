// Package overlay keeps the session-local saved, published and bid state
// that is layered over the store's listings.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/komsu/internal/models"
	"github.com/pauljones0/komsu/internal/storage"
	"github.com/pauljones0/komsu/internal/util"
	"github.com/pauljones0/komsu/internal/validator"
)

const defaultRetries = 3

// Store is the part of the keyed store the overlay writes through.
type Store interface {
	ReadOnce(ctx context.Context, path string) (map[string]any, error)
	Write(ctx context.Context, path string, value any) error
	Append(ctx context.Context, path string, value any) (string, error)
}

// WriteState tracks a save that the store has not confirmed.
type WriteState int

const (
	WritePending WriteState = iota + 1
	WriteFailed
)

func (s WriteState) String() string {
	switch s {
	case WritePending:
		return "pending"
	case WriteFailed:
		return "failed"
	}
	return "unknown"
}

type pendingSave struct {
	state   WriteState
	gen     int
	uid     string
	listing models.Listing
	err     error
}

type Overlay struct {
	store       Store
	validate    *validator.Validator
	rateLimiter *rate.Limiter
	backoffBase time.Duration

	mu         sync.Mutex
	saved      map[string]bool
	storeSaved map[string]bool
	published  map[string]bool
	selection  []string
	pending    map[string]*pendingSave
	gen        int

	inflight sync.WaitGroup
}

// New returns an empty overlay. writesPerSecond <= 0 disables write limiting.
func New(store Store, writesPerSecond float64) *Overlay {
	limit := rate.Inf
	if writesPerSecond > 0 {
		limit = rate.Limit(writesPerSecond)
	}
	return &Overlay{
		store:       store,
		validate:    validator.New(),
		rateLimiter: rate.NewLimiter(limit, 1),
		backoffBase: util.DefaultBackoffBase,
		saved:       make(map[string]bool),
		storeSaved:  make(map[string]bool),
		published:   make(map[string]bool),
		pending:     make(map[string]*pendingSave),
	}
}

// Save marks the listing saved immediately and writes it under the user's
// saved namespace in the background. A failed write is logged and recorded
// as WriteFailed; the saved flag is not rolled back.
func (o *Overlay) Save(ctx context.Context, session models.Session, listing models.Listing) error {
	if !session.Valid() {
		return models.ErrNoSession
	}
	path, err := storage.SavedItemPath(session.UserID, listing.ID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.saved[listing.ID] = true
	o.gen++
	gen := o.gen
	o.pending[listing.ID] = &pendingSave{state: WritePending, gen: gen, uid: session.UserID, listing: listing}
	o.mu.Unlock()

	// In-flight writes outlive the request that started them.
	writeCtx := context.WithoutCancel(ctx)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		err := o.write(writeCtx, path, listing)
		o.settle(listing.ID, gen, err)
	}()
	return nil
}

func (o *Overlay) write(ctx context.Context, path string, value any) error {
	if err := o.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	return o.store.Write(ctx, path, value)
}

func (o *Overlay) settle(id string, gen int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[id]
	if !ok || p.gen != gen {
		// Superseded by a newer save or reconciled by a store snapshot.
		return
	}
	if err != nil {
		slog.Error("Failed to save listing", "id", id, "error", err)
		p.state = WriteFailed
		p.err = err
		return
	}
	slog.Info("Saved listing", "id", id)
	delete(o.pending, id)
}

// Publish copies one of the user's own listings into the public collection
// and returns the new public key. published is set only after both the read
// and the append succeed.
func (o *Overlay) Publish(ctx context.Context, session models.Session, listingID string) (string, error) {
	if !session.Valid() {
		return "", models.ErrNoSession
	}
	path, err := storage.UserProductPath(session.UserID, listingID)
	if err != nil {
		return "", err
	}

	record, err := o.store.ReadOnce(ctx, path)
	if err != nil {
		slog.Error("Failed to read listing for publish", "id", listingID, "error", err)
		return "", fmt.Errorf("publish %s: %w", listingID, err)
	}

	if err := o.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}
	publicID, err := o.store.Append(ctx, storage.ProductsPath, record)
	if err != nil {
		slog.Error("Failed to publish listing", "id", listingID, "error", err)
		return "", fmt.Errorf("publish %s: %w", listingID, err)
	}

	o.mu.Lock()
	o.published[listingID] = true
	o.mu.Unlock()
	slog.Info("Published listing", "id", listingID, "publicID", publicID)
	return publicID, nil
}

// Append adds value under a store-generated key in the collection at path,
// sharing the write limiter with saves, publishes and bids.
func (o *Overlay) Append(ctx context.Context, path string, value any) (string, error) {
	if err := o.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}
	return o.store.Append(ctx, path, value)
}

// ToggleBid adds listingID to the bid selection, or removes it if already
// selected. It reports whether the listing is selected afterwards.
func (o *Overlay) ToggleBid(listingID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i := slices.Index(o.selection, listingID); i >= 0 {
		o.selection = slices.Delete(o.selection, i, i+1)
		return false
	}
	o.selection = append(o.selection, listingID)
	return true
}

// SubmitBid overwrites the user's bid on targetID with the current selection.
// On success the selection is cleared; on failure it is kept.
func (o *Overlay) SubmitBid(ctx context.Context, session models.Session, targetID string) error {
	if !session.Valid() {
		return models.ErrNoSession
	}
	path, err := storage.BidPath(targetID, session.UserID)
	if err != nil {
		return err
	}

	selection := o.Selection()
	if selection == nil {
		selection = []string{}
	}
	bid := models.Bid{Selection: selection, UpdatedAt: time.Now()}
	if err := o.validate.ValidateStruct(bid); err != nil {
		return err
	}

	if err := o.write(ctx, path, bid); err != nil {
		slog.Error("Failed to submit bid", "target", targetID, "error", err)
		return fmt.Errorf("submit bid on %s: %w", targetID, err)
	}

	o.mu.Lock()
	o.selection = nil
	o.mu.Unlock()
	slog.Info("Bid submitted", "target", targetID, "items", len(bid.Selection))
	return nil
}

// MarkSaved replaces the store-confirmed saved set. Pending entries for
// listings the store already holds are dropped.
func (o *Overlay) MarkSaved(ids []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storeSaved = make(map[string]bool, len(ids))
	for _, id := range ids {
		o.storeSaved[id] = true
		delete(o.pending, id)
	}
}

// RetryFailed re-issues every failed save with backoff. It returns the
// errors of the saves that still failed.
func (o *Overlay) RetryFailed(ctx context.Context, session models.Session) error {
	if !session.Valid() {
		return models.ErrNoSession
	}

	type retry struct {
		gen     int
		listing models.Listing
	}
	o.mu.Lock()
	var retries []retry
	for _, p := range o.pending {
		if p.state != WriteFailed || p.uid != session.UserID {
			continue
		}
		o.gen++
		p.gen = o.gen
		p.state = WritePending
		p.err = nil
		retries = append(retries, retry{gen: p.gen, listing: p.listing})
	}
	o.mu.Unlock()

	var errs []error
	for _, r := range retries {
		path, err := storage.SavedItemPath(session.UserID, r.listing.ID)
		if err == nil {
			err = util.RetryWithBackoff(ctx, defaultRetries, o.backoffBase, func(int) error {
				return o.write(ctx, path, r.listing)
			})
		}
		o.settle(r.listing.ID, r.gen, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("retry save %s: %w", r.listing.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until every background save has finished.
func (o *Overlay) Wait() {
	o.inflight.Wait()
}

func (o *Overlay) IsSaved(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.saved[id] || o.storeSaved[id]
}

func (o *Overlay) IsPublished(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.published[id]
}

func (o *Overlay) IsSelected(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Contains(o.selection, id)
}

// Selection returns a copy of the bid selection in selection order.
func (o *Overlay) Selection() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.selection)
}

// PendingSaves reports every save the store has not confirmed.
func (o *Overlay) PendingSaves() map[string]WriteState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]WriteState, len(o.pending))
	for id, p := range o.pending {
		out[id] = p.state
	}
	return out
}

// Decorate attaches the overlay flags to each listing.
func (o *Overlay) Decorate(listings []models.Listing) []models.ListingView {
	o.mu.Lock()
	defer o.mu.Unlock()
	views := make([]models.ListingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, models.ListingView{
			Listing:   l,
			Saved:     o.saved[l.ID] || o.storeSaved[l.ID],
			Published: o.published[l.ID],
			Selected:  slices.Contains(o.selection, l.ID),
		})
	}
	return views
}
