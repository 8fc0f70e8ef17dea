package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/middleware"
	"github.com/iliyamo/medhome/internal/model"
	"github.com/iliyamo/medhome/internal/service"
)

// DashboardService is the read side for signed-in users.
type DashboardService interface {
	Profile(ctx context.Context, username string) (*model.User, error)
	Dashboard(ctx context.Context, username string) (*service.Dashboard, error)
	Export(ctx context.Context, username, title string) (*service.Export, error)
}

// DashboardHandler serves the per-user routes.  Every route sits behind
// middleware.RequireOwner, so the :username parameter is the caller.
type DashboardHandler struct {
	Dashboards DashboardService
	Log        *zap.Logger
}

func NewDashboardHandler(d DashboardService, log *zap.Logger) *DashboardHandler {
	return &DashboardHandler{Dashboards: d, Log: log.Named("dashboard")}
}

type profileResp struct {
	Username  string  `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	SerialNum *string `json:"serial_num"`
}

type exportReq struct {
	Title string `json:"title" form:"title"`
}

// Profile: account fields without the password hash.
func (h *DashboardHandler) Profile(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Dashboards.Profile(ctx, owner(c))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, profileResp{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		SerialNum: u.SerialNum,
	})
}

// Data: chart series of the last week plus the findings text.
func (h *DashboardHandler) Data(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.Dashboards.Dashboard(ctx, owner(c))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Export: report payload.  The body is optional; {"title": "..."} sets the
// report title.
func (h *DashboardHandler) Export(c echo.Context) error {
	var req exportReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Dashboards.Export(ctx, owner(c), req.Title)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// owner prefers the authenticated user over the raw path parameter.
func owner(c echo.Context) string {
	if u := middleware.CurrentUser(c); u != nil {
		return u.Username
	}
	return c.Param("username")
}
