package auth

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	AccessCookie  = "accessToken"
	SessionCookie = "session_id"
)

type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func AccessClaimsFromToken(tokenStr string, secret []byte) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, err
	}
	return &claims, nil
}

type Middleware struct {
	JWTSecret []byte
}

func NewMiddleware(secret []byte) *Middleware {
	return &Middleware{JWTSecret: secret}
}

// EnsureSession guarantees a session_id cookie scoping the cart. A missing
// cookie gets a fresh uuid; the id lands in the echo context either way.
func (m *Middleware) EnsureSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ck, err := c.Cookie(SessionCookie)
		if err != nil || ck.Value == "" {
			sid := uuid.NewString()
			c.SetCookie(&http.Cookie{
				Name:     SessionCookie,
				Value:    sid,
				Path:     "/",
				HttpOnly: true,
				Expires:  time.Now().Add(24 * time.Hour),
			})
			c.Set("session_id", sid)
			return next(c)
		}
		c.Set("session_id", ck.Value)
		return next(c)
	}
}

// RequireLogin validates the access token cookie and puts the numeric user id
// and the raw token into the echo context. Token issuance and refresh live in
// the backend, only validation happens here.
func (m *Middleware) RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ck, err := c.Cookie(AccessCookie)
		if err != nil || ck.Value == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := AccessClaimsFromToken(ck.Value, m.JWTSecret)
		if err != nil || claims == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || userID == 0 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
		}

		c.Set("user_id", userID)
		c.Set("access_token", ck.Value)
		return next(c)
	}
}
