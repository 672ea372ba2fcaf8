package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/Skotchmaster/coffee_shop/internal/cart"
	"github.com/Skotchmaster/coffee_shop/internal/checkout"
	"github.com/Skotchmaster/coffee_shop/internal/events"
	"github.com/Skotchmaster/coffee_shop/internal/gateway"
	"github.com/Skotchmaster/coffee_shop/internal/logging"
	"github.com/Skotchmaster/coffee_shop/internal/models"
	"github.com/Skotchmaster/coffee_shop/internal/sessionstore"
	"github.com/Skotchmaster/coffee_shop/internal/transport"
	"github.com/Skotchmaster/coffee_shop/internal/wishlist"
	"github.com/labstack/echo/v4"
)

// SessionHTTP hosts the cart, wishlist and checkout engines for the
// storefront. Wishlist engines are kept per user and the checkout guard per
// session, so busy flags and in-flight guards hold across requests.
type SessionHTTP struct {
	Store    sessionstore.Store
	Gateway  *gateway.Client
	Producer *events.Producer

	mu        sync.Mutex
	wishlists map[int64]*wishlist.Engine
	checkouts *checkout.Guard
}

func (h *SessionHTTP) sessionID(c echo.Context) (string, error) {
	v, ok := c.Get("session_id").(string)
	if !ok || v == "" {
		return "", errors.New("missing session")
	}
	return v, nil
}

func (h *SessionHTTP) userID(c echo.Context) (int64, error) {
	v, ok := c.Get("user_id").(int64)
	if !ok || v == 0 {
		return 0, errors.New("unauthorized")
	}
	return v, nil
}

func (h *SessionHTTP) creds(c echo.Context) gateway.Credentials {
	token, _ := c.Get("access_token").(string)
	return gateway.Credentials{AccessToken: token}
}

func (h *SessionHTTP) cartEngine(c echo.Context) (*cart.Engine, string, error) {
	sid, err := h.sessionID(c)
	if err != nil {
		return nil, "", err
	}
	e, err := cart.NewEngine(c.Request().Context(), h.Store, sid)
	if err != nil {
		return nil, "", err
	}
	return e, sid, nil
}

func (h *SessionHTTP) wishlistEngine(userID int64, creds gateway.Credentials) *wishlist.Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.wishlists == nil {
		h.wishlists = make(map[int64]*wishlist.Engine)
	}
	if e, ok := h.wishlists[userID]; ok {
		e.SetCredentials(creds)
		return e
	}
	e := wishlist.NewEngine(h.Gateway, userID, creds)
	h.wishlists[userID] = e
	return e
}

func (h *SessionHTTP) publish(c echo.Context, topic, key string, event any) {
	ctx := c.Request().Context()
	if err := h.Producer.Publish(ctx, topic, key, event); err != nil {
		logging.FromContext(ctx).Warn("publish_event_failed", "topic", topic, "error", err)
	}
}

func (h *SessionHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "get.cart")

	engine, _, err := h.cartEngine(c)
	if err != nil {
		l.Error("get_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, engine.Lines())
}

func (h *SessionHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "add.cart")

	var req transport.AddToCartRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_to_cart_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid body")
	}
	if req.ProductID == 0 {
		l.Warn("add_to_cart_error", "status", 400)
		return c.JSON(http.StatusBadRequest, "product_id required")
	}

	product, err := h.lookupProduct(ctx, req.ProductID)
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			l.Error("add_to_cart_error", "status", 502, "error", err)
			return c.JSON(http.StatusBadGateway, apiErr.Msg)
		}
		l.Warn("add_to_cart_error", "status", 404, "error", err)
		return c.JSON(http.StatusNotFound, "product not found")
	}

	engine, sid, err := h.cartEngine(c)
	if err != nil {
		l.Error("add_to_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}
	if err := engine.Add(ctx, *product); err != nil {
		l.Error("add_to_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, events.TopicCartEvents, sid, map[string]any{
		"type":      "cart_item_added",
		"sessionID": sid,
		"productID": req.ProductID,
	})
	l.Info("item added to cart", "productID", req.ProductID)
	return c.JSON(http.StatusCreated, engine.Lines())
}

func (h *SessionHTTP) SetQuantity(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "set.quantity.cart")

	var req transport.SetQuantityRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("set_quantity_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid body")
	}
	if req.ProductID == 0 {
		return c.JSON(http.StatusBadRequest, "product_id required")
	}

	engine, sid, err := h.cartEngine(c)
	if err != nil {
		l.Error("set_quantity_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}
	if err := engine.SetQuantity(ctx, req.ProductID, req.Quantity); err != nil {
		l.Error("set_quantity_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, events.TopicCartEvents, sid, map[string]any{
		"type":      "cart_quantity_set",
		"sessionID": sid,
		"productID": req.ProductID,
		"quantity":  req.Quantity,
	})
	return c.JSON(http.StatusOK, engine.Lines())
}

func (h *SessionHTTP) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "remove.cart")

	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil || productID <= 0 {
		return c.JSON(http.StatusBadRequest, "invalid product id")
	}

	engine, sid, err := h.cartEngine(c)
	if err != nil {
		l.Error("remove_from_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}
	if err := engine.Remove(ctx, productID); err != nil {
		l.Error("remove_from_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, events.TopicCartEvents, sid, map[string]any{
		"type":      "cart_item_removed",
		"sessionID": sid,
		"productID": productID,
	})
	return c.JSON(http.StatusOK, engine.Lines())
}

func (h *SessionHTTP) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "clear.cart")

	engine, sid, err := h.cartEngine(c)
	if err != nil {
		l.Error("clear_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}
	if err := engine.Clear(ctx); err != nil {
		l.Error("clear_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, events.TopicCartEvents, sid, map[string]any{
		"type":      "cart_cleared",
		"sessionID": sid,
	})
	l.Info("cart cleared")
	return c.JSON(http.StatusOK, "cart cleared")
}

func (h *SessionHTTP) lookupProduct(ctx context.Context, productID int64) (*models.Product, error) {
	products, err := h.Gateway.Products(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].ID == productID {
			return &products[i], nil
		}
	}
	return nil, errors.New("product not found")
}

func (h *SessionHTTP) GetWishList(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "get.wishlist")

	userID, err := h.userID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	engine := h.wishlistEngine(userID, h.creds(c))
	if err := engine.Refetch(ctx); err != nil {
		l.Error("get_wishlist_error", "status", 502, "error", err)
		return c.JSON(http.StatusBadGateway, "wishlist unavailable")
	}

	return c.JSON(http.StatusOK, transport.WishListResponse{
		ProductIDs: engine.ProductIDs(),
		Busy:       engine.Busy(),
	})
}

func (h *SessionHTTP) ToggleWishList(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "toggle.wishlist")

	userID, err := h.userID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.ToggleWishListRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("toggle_wishlist_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid body")
	}
	if req.ProductID == 0 {
		return c.JSON(http.StatusBadRequest, "product_id required")
	}

	engine := h.wishlistEngine(userID, h.creds(c))
	if err := engine.Toggle(ctx, req.ProductID); err != nil {
		switch {
		case errors.Is(err, wishlist.ErrBusy):
			l.Warn("toggle_wishlist_busy", "status", 409, "productID", req.ProductID)
			return c.JSON(http.StatusConflict, "toggle already in flight")
		case errors.Is(err, wishlist.ErrLoginRequired):
			return c.JSON(http.StatusUnauthorized, "login required")
		default:
			l.Error("toggle_wishlist_error", "status", 502, "error", err)
			return c.JSON(http.StatusBadGateway, "wishlist unavailable")
		}
	}

	h.publish(c, events.TopicWishListEvents, strconv.FormatInt(userID, 10), map[string]any{
		"type":      "wishlist_toggled",
		"userID":    userID,
		"productID": req.ProductID,
	})
	return c.JSON(http.StatusOK, transport.WishListResponse{
		ProductIDs: engine.ProductIDs(),
		Busy:       engine.Busy(),
	})
}

func (h *SessionHTTP) RemoveFromWishList(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "remove.wishlist")

	userID, err := h.userID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil || productID <= 0 {
		return c.JSON(http.StatusBadRequest, "invalid product id")
	}

	engine := h.wishlistEngine(userID, h.creds(c))
	if err := engine.Remove(ctx, productID); err != nil {
		switch {
		case errors.Is(err, wishlist.ErrBusy):
			return c.JSON(http.StatusConflict, "remove already in flight")
		case errors.Is(err, wishlist.ErrLoginRequired):
			return c.JSON(http.StatusUnauthorized, "login required")
		default:
			l.Error("remove_wishlist_error", "status", 502, "error", err)
			return c.JSON(http.StatusBadGateway, "wishlist unavailable")
		}
	}

	h.publish(c, events.TopicWishListEvents, strconv.FormatInt(userID, 10), map[string]any{
		"type":      "wishlist_removed",
		"userID":    userID,
		"productID": productID,
	})
	return c.JSON(http.StatusOK, transport.WishListResponse{
		ProductIDs: engine.ProductIDs(),
		Busy:       engine.Busy(),
	})
}
