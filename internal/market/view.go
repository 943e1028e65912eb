// Package market ties the live feeds, the normaliser and the overlay together
// into the marketplace screens of one signed-in session.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/komsu/internal/feed"
	"github.com/pauljones0/komsu/internal/live"
	"github.com/pauljones0/komsu/internal/models"
	"github.com/pauljones0/komsu/internal/overlay"
	"github.com/pauljones0/komsu/internal/storage"
	"github.com/pauljones0/komsu/internal/validator"
)

type View struct {
	overlay  *overlay.Overlay
	notifier ListingNotifier
	validate *validator.Validator
	session  models.Session

	mu       sync.RWMutex
	products []models.Listing
	mine     []models.Listing
	bindings []*live.Binding
}

// Open subscribes to the public feed, the user's own listings and the user's
// saved set. notifier may be nil.
func Open(ctx context.Context, store Store, ov *overlay.Overlay, notifier ListingNotifier, session models.Session) (*View, error) {
	if !session.Valid() {
		return nil, models.ErrNoSession
	}
	minePath, err := storage.UserProductsPath(session.UserID)
	if err != nil {
		return nil, err
	}
	savedPath, err := storage.UserSavedPath(session.UserID)
	if err != nil {
		return nil, err
	}

	v := &View{
		overlay:  ov,
		notifier: notifier,
		validate: validator.New(),
		session:  session,
		products: []models.Listing{},
		mine:     []models.Listing{},
	}

	feeds := []struct {
		path  string
		apply func(*storage.Snapshot)
	}{
		{storage.ProductsPath, v.applyProducts},
		{minePath, v.applyMine},
		{savedPath, func(snap *storage.Snapshot) { ov.MarkSaved(snap.Keys()) }},
	}

	// A plain Group: the listeners must outlive Open, so they get ctx, not a
	// context that Wait cancels.
	var g errgroup.Group
	bindings := make([]*live.Binding, len(feeds))
	for i, f := range feeds {
		g.Go(func() error {
			b, err := live.Bind(ctx, store, f.path, f.apply)
			if err != nil {
				return err
			}
			bindings[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, b := range bindings {
			if b != nil {
				b.Release()
			}
		}
		return nil, fmt.Errorf("open market view: %w", err)
	}

	v.mu.Lock()
	v.bindings = bindings
	v.mu.Unlock()
	slog.Info("Market view opened", "user", session.UserID)
	return v, nil
}

func (v *View) applyProducts(snap *storage.Snapshot) {
	listings := feed.Normalize(snap)
	v.mu.Lock()
	v.products = listings
	v.mu.Unlock()
}

func (v *View) applyMine(snap *storage.Snapshot) {
	listings := feed.Normalize(snap)
	v.mu.Lock()
	v.mine = listings
	v.mu.Unlock()
}

// Close releases every subscription. In-flight writes are not cancelled.
func (v *View) Close() {
	v.mu.Lock()
	bindings := v.bindings
	v.bindings = nil
	v.mu.Unlock()
	for _, b := range bindings {
		b.Release()
	}
}

// Loading is true while any feed is still waiting for its first snapshot.
func (v *View) Loading() bool {
	v.mu.RLock()
	bindings := v.bindings
	v.mu.RUnlock()
	for _, b := range bindings {
		if b.Loading() {
			return true
		}
	}
	return false
}

func (v *View) Session() models.Session {
	return v.session
}

// Listings returns the public feed narrowed by query.
func (v *View) Listings(query string) []models.ListingView {
	v.mu.RLock()
	products := v.products
	v.mu.RUnlock()
	return v.overlay.Decorate(feed.Filter(products, query))
}

// MyListings returns the user's own listings narrowed by query.
func (v *View) MyListings(query string) []models.ListingView {
	v.mu.RLock()
	mine := v.mine
	v.mu.RUnlock()
	return v.overlay.Decorate(feed.Filter(mine, query))
}

func find(listings []models.Listing, id string) (models.Listing, bool) {
	i := slices.IndexFunc(listings, func(l models.Listing) bool { return l.ID == id })
	if i < 0 {
		return models.Listing{}, false
	}
	return listings[i], true
}

// Listing looks id up in the public feed.
func (v *View) Listing(id string) (models.Listing, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	l, ok := find(v.products, id)
	if !ok {
		return models.Listing{}, fmt.Errorf("%s: %w", id, models.ErrListingNotFound)
	}
	return l, nil
}

// Details returns one public listing decorated with the session's flags.
func (v *View) Details(id string) (models.ListingView, error) {
	l, err := v.Listing(id)
	if err != nil {
		return models.ListingView{}, err
	}
	return v.overlay.Decorate([]models.Listing{l})[0], nil
}

func (v *View) myListing(id string) (models.Listing, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	l, ok := find(v.mine, id)
	if !ok {
		return models.Listing{}, fmt.Errorf("%s: %w", id, models.ErrListingNotFound)
	}
	return l, nil
}

// Save flags a public listing as saved; see overlay.Save.
func (v *View) Save(ctx context.Context, id string) error {
	l, err := v.Listing(id)
	if err != nil {
		return err
	}
	return v.overlay.Save(ctx, v.session, l)
}

// Publish copies one of the user's listings into the public feed and
// announces it. A failed announcement does not fail the publish.
func (v *View) Publish(ctx context.Context, id string) (string, error) {
	publicID, err := v.overlay.Publish(ctx, v.session, id)
	if err != nil {
		return "", err
	}
	if v.notifier != nil {
		l, lookupErr := v.myListing(id)
		if lookupErr != nil {
			l = models.Listing{ID: id}
		}
		if _, err := v.notifier.Send(ctx, publicID, l); err != nil {
			slog.Warn("Failed to announce published listing", "id", id, "error", err)
		}
	}
	return publicID, nil
}

// ToggleBid selects or deselects one of the user's own listings as part of
// the next bid.
func (v *View) ToggleBid(id string) (bool, error) {
	if _, err := v.myListing(id); err != nil {
		return false, err
	}
	return v.overlay.ToggleBid(id), nil
}

// SubmitBid offers the current selection in exchange for a public listing.
func (v *View) SubmitBid(ctx context.Context, targetID string) error {
	if _, err := v.Listing(targetID); err != nil {
		return err
	}
	return v.overlay.SubmitBid(ctx, v.session, targetID)
}

// AddProduct creates a listing in the user's own namespace and returns its key.
func (v *View) AddProduct(ctx context.Context, form models.NewListing) (string, error) {
	if err := v.validate.ValidateStruct(form); err != nil {
		return "", err
	}
	path, err := storage.UserProductsPath(v.session.UserID)
	if err != nil {
		return "", err
	}

	listing := models.Listing{Name: form.Name, Description: form.Description, Images: []string{}}
	if form.Image != "" {
		listing.Images = []string{form.Image}
	}
	id, err := v.overlay.Append(ctx, path, listing)
	if err != nil {
		slog.Error("Error adding product", "name", form.Name, "error", err)
		return "", fmt.Errorf("add product: %w", err)
	}
	slog.Info("Product added", "id", id, "name", form.Name)
	return id, nil
}
