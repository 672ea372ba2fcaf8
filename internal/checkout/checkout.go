package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Skotchmaster/coffee_shop/internal/gateway"
	"github.com/Skotchmaster/coffee_shop/internal/models"
	"github.com/Skotchmaster/coffee_shop/internal/sessionstore"
	"github.com/shopspring/decimal"
)

// JournalKey is the session-store key holding the in-progress checkout, kept
// from the first order-item call until every item is confirmed.
const JournalKey = "pendingCheckout"

type State string

const (
	StateIdle          State = "idle"
	StateCreatingOrder State = "creating_order"
	StateCreatingItems State = "creating_items"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrAddressRequired      = errors.New("shipping address required")
	ErrInvalidPaymentMethod = errors.New("payment method must be CARD or TRANSFER")
	ErrLoginRequired        = errors.New("login required")
	ErrNothingPending       = errors.New("no pending checkout")
	ErrInProgress           = errors.New("checkout already running")
)

// PendingCheckoutError refuses a new checkout while an earlier one is
// journaled, so a retry never silently creates a second order.
type PendingCheckoutError struct {
	OrderID int64
}

func (e *PendingCheckoutError) Error() string {
	return fmt.Sprintf("checkout pending for order %d, resume or abandon it first", e.OrderID)
}

// PartialCheckoutError reports the under-populated order left on the server
// when an order-item call fails mid-sequence. The order id stays discoverable
// and the journal survives for Resume or Abandon.
type PartialCheckoutError struct {
	OrderID int64
	Created int
	Total   int
	Err     error
}

func (e *PartialCheckoutError) Error() string {
	return fmt.Sprintf("order %d incomplete: %d of %d items created: %v", e.OrderID, e.Created, e.Total, e.Err)
}

func (e *PartialCheckoutError) Unwrap() error {
	return e.Err
}

// Gateway is the slice of the commerce backend the orchestrator needs.
type Gateway interface {
	CreateOrder(ctx context.Context, creds gateway.Credentials, req gateway.CreateOrderRequest) (*models.Order, error)
	CreateOrderItem(ctx context.Context, creds gateway.Credentials, req gateway.CreateOrderItemRequest) (*models.OrderItem, error)
	CancelOrder(ctx context.Context, creds gateway.Credentials, orderID int64) error
}

// Cart is the slice of the cart engine the orchestrator reads and, on
// confirmed success only, removes the ordered lines from.
type Cart interface {
	Lines() []models.CartLine
	Total() decimal.Decimal
	Remove(ctx context.Context, productID int64) error
}

type Request struct {
	Address       string
	PaymentMethod string
}

type Result struct {
	Order *models.Order      `json:"order"`
	Items []models.OrderItem `json:"items"`
}

// journal snapshots the created order, the product ids it covers and the
// lines still waiting for an order-item call.
type journal struct {
	Order     models.Order      `json:"order"`
	Ordered   []int64           `json:"ordered"`
	Remaining []models.CartLine `json:"remaining"`
}

// Guard shares the in-flight flag between orchestrator instances of the same
// session. Orchestrators are request-scoped, the guard is not, so two
// concurrent requests can never both enter the saga for one session.
type Guard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{running: make(map[string]struct{})}
}

func (g *Guard) acquire(sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.running[sessionID]; ok {
		return ErrInProgress
	}
	g.running[sessionID] = struct{}{}
	return nil
}

func (g *Guard) release(sessionID string) {
	g.mu.Lock()
	delete(g.running, sessionID)
	g.mu.Unlock()
}

// Orchestrator turns one cart into one order plus N order items against two
// endpoints with no cross-call atomicity. Items are created strictly one at a
// time for a deterministic failure point.
type Orchestrator struct {
	gw        Gateway
	cart      Cart
	store     sessionstore.Store
	guard     *Guard
	sessionID string
	userID    int64
	creds     gateway.Credentials

	mu    sync.Mutex
	state State
}

func New(gw Gateway, cart Cart, store sessionstore.Store, guard *Guard, sessionID string, userID int64, creds gateway.Credentials) *Orchestrator {
	return &Orchestrator{
		gw:        gw,
		cart:      cart,
		store:     store,
		guard:     guard,
		sessionID: sessionID,
		userID:    userID,
		creds:     creds,
		state:     StateIdle,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Pending reports the journaled order id of an unfinished checkout, if any.
func (o *Orchestrator) Pending(ctx context.Context) (int64, bool, error) {
	j, ok, err := o.readJournal(ctx)
	if err != nil || !ok {
		return 0, false, err
	}
	return j.Order.ID, true, nil
}

// Begin runs the full checkout. Validation happens before any network call;
// the order is created with status PENDING, journaled, populated item by
// item, and only after every item is confirmed do the ordered lines leave
// the cart.
func (o *Orchestrator) Begin(ctx context.Context, req Request) (*Result, error) {
	if err := o.start(); err != nil {
		return nil, err
	}
	defer o.finish()

	if o.userID == 0 {
		return nil, ErrLoginRequired
	}
	lines := o.cart.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, ErrAddressRequired
	}
	if req.PaymentMethod != models.PaymentMethodCard && req.PaymentMethod != models.PaymentMethodTransfer {
		return nil, ErrInvalidPaymentMethod
	}

	if j, ok, err := o.readJournal(ctx); err != nil {
		return nil, fmt.Errorf("read checkout journal: %w", err)
	} else if ok {
		return nil, &PendingCheckoutError{OrderID: j.Order.ID}
	}

	o.setState(StateCreatingOrder)
	order, err := o.gw.CreateOrder(ctx, o.creds, gateway.CreateOrderRequest{
		OrderCount:    len(lines),
		TotalPrice:    o.cart.Total(),
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: models.PaymentStatusPending,
		UserID:        o.userID,
		Address:       req.Address,
	})
	if err != nil {
		o.setState(StateFailed)
		return nil, fmt.Errorf("create order: %w", err)
	}

	j := journal{Order: *order, Remaining: lines}
	for _, line := range lines {
		j.Ordered = append(j.Ordered, line.ProductID)
	}
	if err := o.writeJournal(ctx, j); err != nil {
		// The order exists server-side but cannot be tracked locally; report
		// it the same way as a mid-sequence failure so the id is not lost.
		o.setState(StateFailed)
		return nil, &PartialCheckoutError{OrderID: order.ID, Created: 0, Total: len(lines), Err: err}
	}

	items, err := o.createItems(ctx, j)
	if err != nil {
		return nil, err
	}
	return &Result{Order: order, Items: items}, nil
}

// Resume finishes a journaled checkout by creating the remaining items.
func (o *Orchestrator) Resume(ctx context.Context) (*Result, error) {
	if err := o.start(); err != nil {
		return nil, err
	}
	defer o.finish()

	j, ok, err := o.readJournal(ctx)
	if err != nil {
		return nil, fmt.Errorf("read checkout journal: %w", err)
	}
	if !ok {
		return nil, ErrNothingPending
	}

	items, err := o.createItems(ctx, j)
	if err != nil {
		return nil, err
	}
	order := j.Order
	return &Result{Order: &order, Items: items}, nil
}

// Abandon cancels the journaled order on the server and drops the journal.
// The cart is left untouched.
func (o *Orchestrator) Abandon(ctx context.Context) error {
	if err := o.start(); err != nil {
		return err
	}
	defer o.finish()

	j, ok, err := o.readJournal(ctx)
	if err != nil {
		return fmt.Errorf("read checkout journal: %w", err)
	}
	if !ok {
		return ErrNothingPending
	}

	if err := o.gw.CancelOrder(ctx, o.creds, j.Order.ID); err != nil {
		return fmt.Errorf("cancel order %d: %w", j.Order.ID, err)
	}
	if err := o.store.Delete(ctx, o.sessionID, JournalKey); err != nil {
		return fmt.Errorf("drop checkout journal: %w", err)
	}
	o.setState(StateIdle)
	return nil
}

// createItems walks the remaining lines strictly one at a time, shrinking the
// journal after each confirmed item. On success only the journaled product
// ids leave the cart; lines added while the saga was stuck stay untouched.
func (o *Orchestrator) createItems(ctx context.Context, j journal) ([]models.OrderItem, error) {
	o.setState(StateCreatingItems)

	total := len(j.Ordered)
	done := total - len(j.Remaining)

	items := make([]models.OrderItem, 0, len(j.Remaining))
	for i, line := range j.Remaining {
		item, err := o.gw.CreateOrderItem(ctx, o.creds, gateway.CreateOrderItemRequest{
			OrderID:   j.Order.ID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			ProductID: line.ProductID,
		})
		if err != nil {
			o.setState(StateFailed)
			return nil, &PartialCheckoutError{OrderID: j.Order.ID, Created: done + i, Total: total, Err: err}
		}
		items = append(items, *item)

		if err := o.writeJournal(ctx, journal{Order: j.Order, Ordered: j.Ordered, Remaining: j.Remaining[i+1:]}); err != nil {
			o.setState(StateFailed)
			return nil, &PartialCheckoutError{OrderID: j.Order.ID, Created: done + i + 1, Total: total, Err: err}
		}
	}

	for _, id := range j.Ordered {
		if err := o.cart.Remove(ctx, id); err != nil {
			o.setState(StateFailed)
			return nil, fmt.Errorf("remove ordered line %d: %w", id, err)
		}
	}
	if err := o.store.Delete(ctx, o.sessionID, JournalKey); err != nil {
		o.setState(StateFailed)
		return nil, fmt.Errorf("drop checkout journal: %w", err)
	}
	o.setState(StateCompleted)
	return items, nil
}

func (o *Orchestrator) start() error {
	return o.guard.acquire(o.sessionID)
}

func (o *Orchestrator) finish() {
	o.guard.release(o.sessionID)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) readJournal(ctx context.Context) (journal, bool, error) {
	raw, ok, err := o.store.Get(ctx, o.sessionID, JournalKey)
	if err != nil || !ok {
		return journal{}, false, err
	}
	var j journal
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return journal{}, false, fmt.Errorf("decode checkout journal: %w", err)
	}
	return j, true, nil
}

func (o *Orchestrator) writeJournal(ctx context.Context, j journal) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return o.store.Set(ctx, o.sessionID, JournalKey, string(data))
}
