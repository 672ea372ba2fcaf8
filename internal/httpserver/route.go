package httpserver

import (
	"net/http"

	authmw "github.com/Skotchmaster/coffee_shop/internal/middleware/auth"
	"github.com/labstack/echo/v4"
)

type Deps struct {
	SessionHandler *SessionHTTP
	JWTSecret      []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	mw := authmw.NewMiddleware(d.JWTSecret)

	e.GET("/products", d.SessionHandler.GetProducts)

	cart := e.Group("/cart")
	cart.Use(mw.EnsureSession)
	cart.GET("", d.SessionHandler.GetCart)
	cart.POST("", d.SessionHandler.AddToCart)
	cart.PATCH("/items", d.SessionHandler.SetQuantity)
	cart.DELETE("/items/:productId", d.SessionHandler.RemoveFromCart)
	cart.DELETE("", d.SessionHandler.ClearCart)

	wish := e.Group("/wishlist")
	wish.Use(mw.RequireLogin)
	wish.GET("", d.SessionHandler.GetWishList)
	wish.POST("/toggle", d.SessionHandler.ToggleWishList)
	wish.DELETE("/:productId", d.SessionHandler.RemoveFromWishList)

	co := e.Group("/checkout")
	co.Use(mw.EnsureSession, mw.RequireLogin)
	co.POST("", d.SessionHandler.Checkout)
	co.POST("/resume", d.SessionHandler.ResumeCheckout)
	co.DELETE("", d.SessionHandler.AbandonCheckout)

	orders := e.Group("/orders")
	orders.Use(mw.RequireLogin)
	orders.GET("", d.SessionHandler.GetOrders)
	orders.PUT("/:id", d.SessionHandler.UpdateOrder)
	orders.DELETE("/:id", d.SessionHandler.CancelOrder)
}
