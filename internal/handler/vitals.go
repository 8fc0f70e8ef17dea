package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/model"
	"github.com/iliyamo/medhome/internal/service"
)

// Ingester stores device submissions.
type Ingester interface {
	Ingest(ctx context.Context, sub service.Submission) (*model.VitalsRecord, error)
}

// CacheInvalidator drops cached responses of one user.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, username string) error
}

// VitalsHandler receives daily readings from chairs.  Cache may be nil.
type VitalsHandler struct {
	Ingestion Ingester
	Cache     CacheInvalidator
	Log       *zap.Logger
}

func NewVitalsHandler(in Ingester, cache CacheInvalidator, log *zap.Logger) *VitalsHandler {
	return &VitalsHandler{Ingestion: in, Cache: cache, Log: log.Named("vitals")}
}

type ingestResp struct {
	Message string `json:"message"`
	Serial  string `json:"serial_number"`
	model.Vitals
}

// Ingest: validate and store one submission, echoing the accepted values.
func (h *VitalsHandler) Ingest(c echo.Context) error {
	var sub service.Submission
	if err := c.Bind(&sub); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Ingestion.Ingest(ctx, sub)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, rec.Owner); err != nil {
			h.Log.Warn("dashboard cache invalidation failed", zap.String("username", rec.Owner), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, ingestResp{
		Message: "Data received successfully",
		Serial:  rec.SerialNum,
		Vitals:  rec.Vitals,
	})
}
