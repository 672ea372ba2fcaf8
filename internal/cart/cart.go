package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Skotchmaster/coffee_shop/internal/models"
	"github.com/Skotchmaster/coffee_shop/internal/sessionstore"
	"github.com/shopspring/decimal"
)

// StorageKey is the fixed session-store key holding the cart as a JSON array
// of lines.
const StorageKey = "cartItems"

// Engine owns the cart of one session. Every mutation writes through to the
// session store; no network calls happen here, the cart stays usable with the
// backend down.
type Engine struct {
	store     sessionstore.Store
	sessionID string

	mu    sync.Mutex
	lines []models.CartLine
}

// NewEngine rehydrates the cart of the given session from the store. Lines
// with a quantity below one are dropped on load, they are never valid.
func NewEngine(ctx context.Context, store sessionstore.Store, sessionID string) (*Engine, error) {
	e := &Engine{store: store, sessionID: sessionID}

	raw, ok, err := store.Get(ctx, sessionID, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if !ok {
		return e, nil
	}

	var saved []models.CartLine
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	for _, line := range saved {
		if line.Quantity >= 1 {
			e.lines = append(e.lines, line)
		}
	}
	return e, nil
}

func (e *Engine) Add(ctx context.Context, p models.Product) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.lines {
		if e.lines[i].ProductID == p.ID {
			e.lines[i].Quantity++
			return e.persist(ctx)
		}
	}
	e.lines = append(e.lines, models.CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  1,
		ImageURL:  p.ImageURL,
	})
	return e.persist(ctx)
}

// SetQuantity sets the quantity of an existing line. A target below one
// removes the line instead, a zero-quantity line is never stored. No upper
// bound is enforced, stock limits belong to the backend.
func (e *Engine) SetQuantity(ctx context.Context, productID int64, n int) error {
	if n < 1 {
		return e.Remove(ctx, productID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.lines {
		if e.lines[i].ProductID == productID {
			e.lines[i].Quantity = n
			return e.persist(ctx)
		}
	}
	return nil
}

// Remove deletes the line if present; removing a missing line is a no-op.
func (e *Engine) Remove(ctx context.Context, productID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.lines {
		if e.lines[i].ProductID == productID {
			e.lines = append(e.lines[:i], e.lines[i+1:]...)
			return e.persist(ctx)
		}
	}
	return nil
}

// Clear empties the cart and persists the empty state.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lines = nil
	return e.persist(ctx)
}

// Total is recomputed from the lines on every read, never cached.
func (e *Engine) Total() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := decimal.Zero
	for _, line := range e.lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

func (e *Engine) Lines() []models.CartLine {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.CartLine, len(e.lines))
	copy(out, e.lines)
	return out
}

func (e *Engine) persist(ctx context.Context) error {
	lines := e.lines
	if lines == nil {
		lines = []models.CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := e.store.Set(ctx, e.sessionID, StorageKey, string(data)); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	return nil
}
