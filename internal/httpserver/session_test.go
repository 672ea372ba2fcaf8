package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Skotchmaster/coffee_shop/internal/gateway"
	authmw "github.com/Skotchmaster/coffee_shop/internal/middleware/auth"
	"github.com/Skotchmaster/coffee_shop/internal/models"
	"github.com/Skotchmaster/coffee_shop/internal/sessionstore"
	"github.com/Skotchmaster/coffee_shop/internal/transport"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testJWTSecret = []byte("test-jwt-secret")

// fakeBackend is the remote commerce API: a product catalog, a wishlist set
// and order/orderItem endpoints wrapped in the RsData envelope.
type fakeBackend struct {
	wishlist   map[int64]struct{}
	orders     int64
	itemCalls  int
	failItemAt int // 1-based item call to fail, 0 = never
	lastToken  string
}

func rsData(resultCode, msg string, data any) map[string]any {
	return map[string]any{"resultCode": resultCode, "msg": msg, "data": data}
}

func (b *fakeBackend) register(e *echo.Echo) {
	e.GET("/api/v1/products", func(c echo.Context) error {
		return c.JSON(http.StatusOK, rsData("200-1", "ok", []map[string]any{
			{"id": 1, "name": "americano", "price": "5000", "stock": 10, "imageUrl": "https://img.example/americano.jpg"},
			{"id": 2, "name": "latte", "price": "6000", "stock": 10, "imageUrl": "https://img.example/latte.jpg"},
		}))
	})
	e.POST("/api/v1/orders", func(c echo.Context) error {
		var req map[string]any
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, rsData("400-1", "bad body", nil))
		}
		b.orders++
		return c.JSON(http.StatusCreated, rsData("201-1", "order created", map[string]any{
			"id":            b.orders,
			"userId":        42,
			"orderCount":    req["orderCount"],
			"totalPrice":    req["totalPrice"],
			"paymentMethod": req["paymentMethod"],
			"paymentStatus": req["paymentStatus"],
			"address":       req["address"],
		}))
	})
	e.POST("/api/v1/orderItems", func(c echo.Context) error {
		b.itemCalls++
		if b.failItemAt > 0 && b.itemCalls == b.failItemAt {
			return c.JSON(http.StatusInternalServerError, rsData("500-1", "order item rejected", nil))
		}
		var req map[string]any
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, rsData("400-1", "bad body", nil))
		}
		return c.JSON(http.StatusCreated, rsData("201-1", "order item created", map[string]any{
			"id":        b.itemCalls,
			"orderId":   req["orderId"],
			"productId": req["productId"],
			"quantity":  req["quantity"],
			"unitPrice": req["unitPrice"],
		}))
	})
	e.GET("/api/v1/wish-lists", func(c echo.Context) error {
		entries := make([]map[string]any, 0, len(b.wishlist))
		for id := range b.wishlist {
			entries = append(entries, map[string]any{"id": id, "userId": 42, "productId": id})
		}
		return c.JSON(http.StatusOK, rsData("200-1", "ok", entries))
	})
	e.POST("/api/v1/wish-lists/toggle", func(c echo.Context) error {
		if ck, err := c.Cookie("accessToken"); err == nil {
			b.lastToken = ck.Value
		}
		var req struct {
			ProductID int64 `json:"productId"`
		}
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, rsData("400-1", "bad body", nil))
		}
		if _, ok := b.wishlist[req.ProductID]; ok {
			delete(b.wishlist, req.ProductID)
		} else {
			b.wishlist[req.ProductID] = struct{}{}
		}
		return c.JSON(http.StatusOK, rsData("200-1", "toggled", nil))
	})
	e.DELETE("/api/v1/orders/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, rsData("200-1", "order cancelled", nil))
	})
}

type testEnv struct {
	T       *testing.T
	E       *echo.Echo
	Backend *fakeBackend
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SessionEntry{}))

	backend := &fakeBackend{wishlist: make(map[int64]struct{})}
	be := echo.New()
	backend.register(be)
	srv := httptest.NewServer(be)
	t.Cleanup(srv.Close)

	handler := &SessionHTTP{
		Store:   &sessionstore.GormStore{DB: db},
		Gateway: gateway.NewClient(srv.URL),
	}

	e := echo.New()
	Register(e, &Deps{SessionHandler: handler, JWTSecret: testJWTSecret})

	return &testEnv{T: t, E: e, Backend: backend}
}

func (env *testEnv) doJSONRequest(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, userID string) *http.Cookie {
	return loginWithTTL(t, userID, time.Hour)
}

func loginWithTTL(t *testing.T, userID string, ttl time.Duration) *http.Cookie {
	claims := authmw.AccessClaims{
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWTSecret)
	require.NoError(t, err)
	return &http.Cookie{Name: authmw.AccessCookie, Value: token, Path: "/"}
}

func sessionCookie() *http.Cookie {
	return &http.Cookie{Name: authmw.SessionCookie, Value: "test-session", Path: "/"}
}

func TestCartFlow(t *testing.T) {
	env := newTestEnv(t)
	ck := sessionCookie()

	rec := env.doJSONRequest(http.MethodPost, "/cart", transport.AddToCartRequest{ProductID: 1}, ck)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.doJSONRequest(http.MethodPost, "/cart", transport.AddToCartRequest{ProductID: 1}, ck)
	require.Equal(t, http.StatusCreated, rec.Code)

	var lines []models.CartLine
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 1)
	require.Equal(t, 2, lines[0].Quantity)

	rec = env.doJSONRequest(http.MethodPatch, "/cart/items", transport.SetQuantityRequest{ProductID: 1, Quantity: 5}, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Equal(t, 5, lines[0].Quantity)

	rec = env.doJSONRequest(http.MethodDelete, "/cart/items/1", nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 0)
}

func TestAddToCartUnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSONRequest(http.MethodPost, "/cart", transport.AddToCartRequest{ProductID: 99}, sessionCookie())
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartIssuesSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSONRequest(http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var issued bool
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == authmw.SessionCookie && ck.Value != "" {
			issued = true
		}
	}
	require.True(t, issued)
}

func TestWishListRequiresLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSONRequest(http.MethodGet, "/wishlist", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doJSONRequest(http.MethodPost, "/wishlist/toggle", transport.ToggleWishListRequest{ProductID: 1})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWishListToggle(t *testing.T) {
	env := newTestEnv(t)
	ck := login(t, "42")

	rec := env.doJSONRequest(http.MethodPost, "/wishlist/toggle", transport.ToggleWishListRequest{ProductID: 7}, ck)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp transport.WishListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []int64{7}, resp.ProductIDs)

	rec = env.doJSONRequest(http.MethodPost, "/wishlist/toggle", transport.ToggleWishListRequest{ProductID: 7}, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.ProductIDs, 0)
}

func TestWishListSendsCurrentToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSONRequest(http.MethodPost, "/wishlist/toggle",
		transport.ToggleWishListRequest{ProductID: 7}, loginWithTTL(t, "42", time.Hour))
	require.Equal(t, http.StatusOK, rec.Code)

	// Re-login mints a new token; the cached engine must present it.
	renewed := loginWithTTL(t, "42", 2*time.Hour)
	rec = env.doJSONRequest(http.MethodPost, "/wishlist/toggle",
		transport.ToggleWishListRequest{ProductID: 8}, renewed)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, renewed.Value, env.Backend.lastToken)
}

func TestCheckoutEmptyCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSONRequest(http.MethodPost, "/checkout",
		transport.CheckoutRequest{Address: "1 Coffee St", PaymentMethod: "CARD"},
		sessionCookie(), login(t, "42"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int64(0), env.Backend.orders)
}

func TestCheckoutPartialFailureThenResume(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.failItemAt = 2
	sck := sessionCookie()
	ack := login(t, "42")

	rec := env.doJSONRequest(http.MethodPost, "/cart", transport.AddToCartRequest{ProductID: 1}, sck)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.doJSONRequest(http.MethodPost, "/cart", transport.AddToCartRequest{ProductID: 2}, sck)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.doJSONRequest(http.MethodPost, "/checkout",
		transport.CheckoutRequest{Address: "1 Coffee St", PaymentMethod: "CARD"}, sck, ack)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var partial transport.PartialCheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &partial))
	require.Equal(t, int64(1), partial.OrderID)
	require.Equal(t, 1, partial.Created)
	require.Equal(t, 2, partial.Total)

	// Cart survived the failure.
	rec = env.doJSONRequest(http.MethodGet, "/cart", nil, sck)
	var lines []models.CartLine
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 2)

	// A second checkout is refused while the first is journaled.
	rec = env.doJSONRequest(http.MethodPost, "/checkout",
		transport.CheckoutRequest{Address: "1 Coffee St", PaymentMethod: "CARD"}, sck, ack)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, int64(1), env.Backend.orders)

	// Resume finishes the remaining item and clears the cart.
	rec = env.doJSONRequest(http.MethodPost, "/checkout/resume", nil, sck, ack)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSONRequest(http.MethodGet, "/cart", nil, sck)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 0)
}

func TestCheckoutSuccess(t *testing.T) {
	env := newTestEnv(t)
	sck := sessionCookie()
	ack := login(t, "42")

	rec := env.doJSONRequest(http.MethodPost, "/cart", transport.AddToCartRequest{ProductID: 1}, sck)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.doJSONRequest(http.MethodPost, "/checkout",
		transport.CheckoutRequest{Address: "1 Coffee St", PaymentMethod: "TRANSFER"}, sck, ack)
	require.Equal(t, http.StatusCreated, rec.Code)

	var result struct {
		Order models.Order       `json:"order"`
		Items []models.OrderItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, int64(1), result.Order.ID)
	require.Equal(t, "PENDING", result.Order.PaymentStatus)
	require.Len(t, result.Items, 1)

	rec = env.doJSONRequest(http.MethodGet, "/cart", nil, sck)
	var lines []models.CartLine
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 0)
}
