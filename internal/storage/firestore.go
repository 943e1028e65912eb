package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/komsu/internal/models"
)

type Client struct {
	client *firestore.Client
}

// NewApp initializes the Firebase app shared by the store and the identity resolver.
func NewApp(ctx context.Context, projectID string) (*firebase.App, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	return app, nil
}

func New(ctx context.Context, app *firebase.App) (*Client, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("app.Firestore: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// UnsubscribeFunc releases a subscription. It is safe to call more than once.
type UnsubscribeFunc func()

// subscription is a live snapshot listener on one collection.
type subscription struct {
	path   string
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	once    sync.Once
}

// Unsubscribe stops the listener. No callback starts after it returns.
// It must not be called from inside a snapshot or error callback.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.cancel()
		slog.Debug("Unsubscribed", "path", s.path)
	})
}

// deliver runs fn unless the subscription was released. Holding mu across fn
// makes Unsubscribe wait for an in-flight delivery.
func (s *subscription) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	fn()
}

// Subscribe opens a snapshot listener on a collection path. Every change
// delivers the full collection. A delivery error is reported once through
// onError; the listener is not restarted.
func (c *Client) Subscribe(ctx context.Context, path string, onSnapshot func(*Snapshot), onError func(error)) (UnsubscribeFunc, error) {
	collRef := c.client.Collection(path)
	if collRef == nil {
		return nil, fmt.Errorf("invalid collection path %q", path)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{path: path, cancel: cancel}
	iter := collRef.Snapshots(listenCtx)

	go func() {
		defer iter.Stop()
		for {
			qs, err := iter.Next()
			if err != nil {
				if errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled || listenCtx.Err() != nil {
					return
				}
				sub.deliver(func() { onError(fmt.Errorf("listen %s: %w", path, err)) })
				return
			}

			snap, err := collect(qs.Documents)
			if err != nil {
				sub.deliver(func() { onError(fmt.Errorf("read snapshot %s: %w", path, err)) })
				return
			}
			sub.deliver(func() { onSnapshot(snap) })
		}
	}()

	return sub.Unsubscribe, nil
}

func collect(docs *firestore.DocumentIterator) (*Snapshot, error) {
	defer docs.Stop()
	var snap *Snapshot
	for {
		doc, err := docs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if snap == nil {
			snap = &Snapshot{}
		}
		snap.Entries = append(snap.Entries, Entry{Key: doc.Ref.ID, Value: doc.Data()})
	}
	return snap, nil
}

// ReadOnce reads a single document.
func (c *Client) ReadOnce(ctx context.Context, path string) (map[string]any, error) {
	docRef := c.client.Doc(path)
	if docRef == nil {
		return nil, fmt.Errorf("invalid document path %q", path)
	}
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%s: %w", path, models.ErrListingNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !doc.Exists() {
		return nil, fmt.Errorf("%s: %w", path, models.ErrListingNotFound)
	}
	return doc.Data(), nil
}

// Write overwrites the document at path.
func (c *Client) Write(ctx context.Context, path string, value any) error {
	docRef := c.client.Doc(path)
	if docRef == nil {
		return fmt.Errorf("invalid document path %q", path)
	}
	if _, err := docRef.Set(ctx, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Append adds value to a collection under a store-generated key.
func (c *Client) Append(ctx context.Context, path string, value any) (string, error) {
	collRef := c.client.Collection(path)
	if collRef == nil {
		return "", fmt.Errorf("invalid collection path %q", path)
	}
	ref, _, err := collRef.Add(ctx, value)
	if err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return ref.ID, nil
}
