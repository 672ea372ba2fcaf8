package wishlist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Skotchmaster/coffee_shop/internal/gateway"
	"github.com/Skotchmaster/coffee_shop/internal/models"
)

var (
	// ErrLoginRequired is returned for every mutation without an
	// authenticated user. The engine never falls back to an anonymous
	// server-side identity.
	ErrLoginRequired = errors.New("login required")

	// ErrBusy is returned when a toggle or remove for the same product is
	// still outstanding, so rapid double-clicks cannot double-submit.
	ErrBusy = errors.New("request already in flight")
)

// Gateway is the slice of the commerce backend the engine needs.
type Gateway interface {
	WishList(ctx context.Context, creds gateway.Credentials) ([]models.WishListEntry, error)
	ToggleWishList(ctx context.Context, creds gateway.Credentials, productID int64) error
	DeleteWishList(ctx context.Context, creds gateway.Credentials, productID int64) error
}

// Engine caches the favorited product ids of one user. The server owns the
// set; every successful mutation is followed by a full refetch, the client
// never predicts the resulting membership.
type Engine struct {
	gw     Gateway
	userID int64
	creds  gateway.Credentials

	mu       sync.Mutex
	snapshot map[int64]struct{}
	inflight map[int64]struct{}
	pending  int
	lastErr  string
}

func NewEngine(gw Gateway, userID int64, creds gateway.Credentials) *Engine {
	return &Engine{
		gw:       gw,
		userID:   userID,
		creds:    creds,
		snapshot: make(map[int64]struct{}),
		inflight: make(map[int64]struct{}),
	}
}

// IsFavorited reports membership against the last known server snapshot.
// Without an authenticated user every product reads as not favorited.
func (e *Engine) IsFavorited(productID int64) bool {
	if e.userID == 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.snapshot[productID]
	return ok
}

func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending > 0
}

// SetCredentials swaps in the caller's current access token. Tokens rotate
// while the cached snapshot lives on, so every request must refresh them.
func (e *Engine) SetCredentials(creds gateway.Credentials) {
	e.mu.Lock()
	e.creds = creds
	e.mu.Unlock()
}

func (e *Engine) credentials() gateway.Credentials {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.creds
}

// Err returns the message of the last failed call, empty after a success.
func (e *Engine) Err() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ProductIDs returns the cached favorited ids.
func (e *Engine) ProductIDs() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(e.snapshot))
	for id := range e.snapshot {
		ids = append(ids, id)
	}
	return ids
}

// Refetch reloads the full favorited set from the server. This is the only
// operation that can resolve a desynchronized snapshot.
func (e *Engine) Refetch(ctx context.Context) error {
	if e.userID == 0 {
		return ErrLoginRequired
	}

	entries, err := e.gw.WishList(ctx, e.credentials())

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.lastErr = err.Error()
		return fmt.Errorf("refetch wishlist: %w", err)
	}
	snapshot := make(map[int64]struct{}, len(entries))
	for _, entry := range entries {
		snapshot[entry.ProductID] = struct{}{}
	}
	e.snapshot = snapshot
	e.lastErr = ""
	return nil
}

// Toggle flips membership of the product on the server and refreshes the
// snapshot afterwards. The flip is a single idempotent intent, the resulting
// state is unknowable without the round trip (another tab may have toggled
// concurrently), so no local prediction happens.
func (e *Engine) Toggle(ctx context.Context, productID int64) error {
	if e.userID == 0 {
		return ErrLoginRequired
	}
	if err := e.acquire(productID); err != nil {
		return err
	}
	defer e.release(productID)

	if err := e.gw.ToggleWishList(ctx, e.credentials(), productID); err != nil {
		e.setErr(err)
		return fmt.Errorf("toggle wishlist: %w", err)
	}
	return e.Refetch(ctx)
}

// Remove deletes the entry on the server. An id absent from the snapshot is a
// local no-op with no network call. On success the snapshot is refetched; on
// failure it is left untouched.
func (e *Engine) Remove(ctx context.Context, productID int64) error {
	if e.userID == 0 {
		return ErrLoginRequired
	}

	e.mu.Lock()
	_, exists := e.snapshot[productID]
	e.mu.Unlock()
	if !exists {
		return nil
	}

	if err := e.acquire(productID); err != nil {
		return err
	}
	defer e.release(productID)

	if err := e.gw.DeleteWishList(ctx, e.credentials(), productID); err != nil {
		e.setErr(err)
		return fmt.Errorf("remove wishlist: %w", err)
	}
	return e.Refetch(ctx)
}

func (e *Engine) acquire(productID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inflight[productID]; ok {
		return ErrBusy
	}
	e.inflight[productID] = struct{}{}
	e.pending++
	return nil
}

func (e *Engine) release(productID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, productID)
	e.pending--
}

func (e *Engine) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = err.Error()
}
