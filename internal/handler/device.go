package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/middleware"
	"github.com/iliyamo/medhome/internal/model"
)

// DeviceReleaser unpairs a user's chair.
type DeviceReleaser interface {
	Release(ctx context.Context, u *model.User) (string, error)
}

// DeviceHandler serves a user's own device.
type DeviceHandler struct {
	Inventory DeviceReleaser
	Log       *zap.Logger
}

func NewDeviceHandler(inv DeviceReleaser, log *zap.Logger) *DeviceHandler {
	return &DeviceHandler{Inventory: inv, Log: log.Named("device")}
}

type releaseResp struct {
	Message string `json:"message"`
	Serial  string `json:"serial_number"`
}

// Release: return the caller's chair to the free pool.  Runs behind
// RequireOwner, so the user is always the one named in the path.
func (h *DeviceHandler) Release(c echo.Context) error {
	u := middleware.CurrentUser(c)
	if u == nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	serial, err := h.Inventory.Release(ctx, u)
	if err != nil {
		return fail(c, h.Log, err)
	}
	h.Log.Info("device released", zap.String("username", u.Username), zap.String("serial", serial))
	return c.JSON(http.StatusOK, releaseResp{Message: "Device released", Serial: serial})
}
