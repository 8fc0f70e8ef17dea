package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/config"
	"github.com/iliyamo/medhome/internal/middleware"
	"github.com/iliyamo/medhome/internal/model"
	"github.com/iliyamo/medhome/internal/service"
)

// Signupper creates paired accounts.
type Signupper interface {
	Signup(ctx context.Context, in service.SignupInput) (*model.User, error)
}

// SessionService opens and closes sessions.
type SessionService interface {
	Login(ctx context.Context, username, password string) (string, *model.User, error)
	Revoke(ctx context.Context, token string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Pairing  Signupper
	Sessions SessionService
	Log      *zap.Logger
}

func NewAuthHandler(cfg config.Config, p Signupper, s SessionService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Pairing: p, Sessions: s, Log: log.Named("auth")}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type userPart struct {
	ID        uint64 `json:"id"`
	Username  string `json:"username"`
	SerialNum string `json:"serial_num"`
}

type loginResp struct {
	User  userPart `json:"user"`
	Token string   `json:"token"`
}

// Signup: create the account and pair it with a free device.  Accepts JSON
// or the signup form fields (user, fname, lname, email, password).
func (h *AuthHandler) Signup(c echo.Context) error {
	var req service.SignupInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Pairing.Signup(ctx, req)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, userPart{ID: u.ID, Username: u.Username, SerialNum: u.Serial()})
}

// Login: verify credentials, open a session and set the sessionId cookie.
// The token is also returned for clients that send it as a Bearer header.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	token, u, err := h.Sessions.Login(ctx, req.Username, req.Password)
	if err != nil {
		return fail(c, h.Log, err)
	}

	c.SetCookie(h.sessionCookie(token))
	return c.JSON(http.StatusOK, loginResp{
		User:  userPart{ID: u.ID, Username: u.Username, SerialNum: u.Serial()},
		Token: token,
	})
}

// Logout: revoke the presented session (if any) and clear the cookie.
// Always succeeds for the client.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.Revoke(ctx, middleware.TokenFromRequest(c)); err != nil {
		return fail(c, h.Log, err)
	}
	ck := h.sessionCookie("")
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	c.SetCookie(ck)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) sessionCookie(value string) *http.Cookie {
	ck := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Cfg.SessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if h.Cfg.SessionMaxAge > 0 {
		ck.MaxAge = int(h.Cfg.SessionMaxAge / time.Second)
	}
	return ck
}
