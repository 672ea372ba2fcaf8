package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Skotchmaster/coffee_shop/internal/checkout"
	"github.com/Skotchmaster/coffee_shop/internal/events"
	"github.com/Skotchmaster/coffee_shop/internal/gateway"
	"github.com/Skotchmaster/coffee_shop/internal/logging"
	"github.com/Skotchmaster/coffee_shop/internal/transport"
	"github.com/labstack/echo/v4"
)

func (h *SessionHTTP) checkoutGuard() *checkout.Guard {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.checkouts == nil {
		h.checkouts = checkout.NewGuard()
	}
	return h.checkouts
}

func (h *SessionHTTP) orchestrator(c echo.Context) (*checkout.Orchestrator, error) {
	userID, err := h.userID(c)
	if err != nil {
		return nil, err
	}
	engine, sid, err := h.cartEngine(c)
	if err != nil {
		return nil, err
	}
	return checkout.New(h.Gateway, engine, h.Store, h.checkoutGuard(), sid, userID, h.creds(c)), nil
}

func (h *SessionHTTP) checkoutError(c echo.Context, l *slog.Logger, err error) error {
	var pending *checkout.PendingCheckoutError
	var partial *checkout.PartialCheckoutError

	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrAddressRequired),
		errors.Is(err, checkout.ErrInvalidPaymentMethod):
		l.Warn("checkout_validation_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrLoginRequired):
		return c.JSON(http.StatusUnauthorized, "login required")
	case errors.Is(err, checkout.ErrNothingPending):
		return c.JSON(http.StatusNotFound, "no pending checkout")
	case errors.Is(err, checkout.ErrInProgress):
		return c.JSON(http.StatusConflict, "checkout already running")
	case errors.As(err, &pending):
		l.Warn("checkout_pending", "status", 409, "orderID", pending.OrderID)
		return c.JSON(http.StatusConflict, transport.PendingCheckoutResponse{
			OrderID: pending.OrderID,
			Message: "unfinished checkout exists, resume or abandon it",
		})
	case errors.As(err, &partial):
		l.Error("checkout_partial_failure", "status", 502,
			"orderID", partial.OrderID, "created", partial.Created, "total", partial.Total, "error", partial.Err)
		return c.JSON(http.StatusBadGateway, transport.PartialCheckoutResponse{
			OrderID: partial.OrderID,
			Created: partial.Created,
			Total:   partial.Total,
			Error:   partial.Err.Error(),
		})
	default:
		l.Error("checkout_error", "status", 502, "error", err)
		return c.JSON(http.StatusBadGateway, "checkout failed")
	}
}

func (h *SessionHTTP) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout")

	var req transport.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("checkout_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid body")
	}

	orch, err := h.orchestrator(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	result, err := orch.Begin(ctx, checkout.Request{
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return h.checkoutError(c, l, err)
	}

	h.publish(c, events.TopicOrderEvents, strconv.FormatInt(result.Order.ID, 10), map[string]any{
		"type":    "order_created",
		"orderID": result.Order.ID,
		"userID":  result.Order.UserID,
		"items":   len(result.Items),
	})
	l.Info("checkout completed", "orderID", result.Order.ID, "items", len(result.Items))
	return c.JSON(http.StatusCreated, result)
}

func (h *SessionHTTP) ResumeCheckout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.resume")

	orch, err := h.orchestrator(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	result, err := orch.Resume(ctx)
	if err != nil {
		return h.checkoutError(c, l, err)
	}

	h.publish(c, events.TopicOrderEvents, strconv.FormatInt(result.Order.ID, 10), map[string]any{
		"type":    "order_resumed",
		"orderID": result.Order.ID,
		"items":   len(result.Items),
	})
	l.Info("checkout resumed", "orderID", result.Order.ID)
	return c.JSON(http.StatusOK, result)
}

func (h *SessionHTTP) AbandonCheckout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.abandon")

	orch, err := h.orchestrator(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	if err := orch.Abandon(ctx); err != nil {
		return h.checkoutError(c, l, err)
	}

	l.Info("checkout abandoned")
	return c.JSON(http.StatusOK, "checkout abandoned")
}

func (h *SessionHTTP) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "get.products")

	products, err := h.Gateway.Products(ctx)
	if err != nil {
		l.Error("get_products_error", "status", 502, "error", err)
		return c.JSON(http.StatusBadGateway, "catalog unavailable")
	}
	return c.JSON(http.StatusOK, products)
}

func (h *SessionHTTP) GetOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "get.orders")

	if _, err := h.userID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	orders, err := h.Gateway.MyOrders(ctx, h.creds(c))
	if err != nil {
		l.Error("get_orders_error", "status", 502, "error", err)
		return c.JSON(http.StatusBadGateway, "orders unavailable")
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *SessionHTTP) UpdateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "update.order")

	if _, err := h.userID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		return c.JSON(http.StatusBadRequest, "invalid order id")
	}

	var req transport.UpdateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Gateway.UpdateOrder(ctx, h.creds(c), orderID, gateway.UpdateOrderRequest{
		Address:       req.Address,
		PaymentStatus: req.PaymentStatus,
	})
	if err != nil {
		l.Error("update_order_error", "status", 502, "error", err)
		return c.JSON(http.StatusBadGateway, "order update failed")
	}
	return c.JSON(http.StatusOK, order)
}

func (h *SessionHTTP) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cancel.order")

	if _, err := h.userID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		return c.JSON(http.StatusBadRequest, "invalid order id")
	}

	if err := h.Gateway.CancelOrder(ctx, h.creds(c), orderID); err != nil {
		l.Error("cancel_order_error", "status", 502, "error", err)
		return c.JSON(http.StatusBadGateway, "order cancel failed")
	}

	h.publish(c, events.TopicOrderEvents, strconv.FormatInt(orderID, 10), map[string]any{
		"type":    "order_cancelled",
		"orderID": orderID,
	})
	return c.NoContent(http.StatusNoContent)
}
