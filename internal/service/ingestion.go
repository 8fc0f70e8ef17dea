package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/model"
	"github.com/iliyamo/medhome/internal/queue"
	"github.com/iliyamo/medhome/internal/repository"
)

// Submission is one day's readings as posted by a chair.  Pointers
// distinguish an omitted field from a zero reading.
type Submission struct {
	Serial    string   `json:"serial_number" form:"serial_number"`
	AvgHR     *float64 `json:"avgHR" form:"avgHR"`
	AvgSpO2   *float64 `json:"avgSpO2" form:"avgSpO2"`
	Weight    *float64 `json:"weight" form:"weight"`
	Systolic  *float64 `json:"bpS" form:"bpS"`
	Diastolic *float64 `json:"bpD" form:"bpD"`
}

// validate returns the readings, ErrMissingField naming the first absent
// field or ErrInvalidInput naming the first NaN or infinite one.
func (s Submission) validate() (model.Vitals, error) {
	if strings.TrimSpace(s.Serial) == "" {
		return model.Vitals{}, fmt.Errorf("%w: serial_number", ErrMissingField)
	}
	fields := []struct {
		name string
		v    *float64
	}{
		{"avgHR", s.AvgHR},
		{"avgSpO2", s.AvgSpO2},
		{"weight", s.Weight},
		{"bpS", s.Systolic},
		{"bpD", s.Diastolic},
	}
	for _, f := range fields {
		if f.v == nil {
			return model.Vitals{}, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
		if math.IsNaN(*f.v) || math.IsInf(*f.v, 0) {
			return model.Vitals{}, fmt.Errorf("%w: %s is not a finite number", ErrInvalidInput, f.name)
		}
	}
	return model.Vitals{
		AvgHeartRate: *s.AvgHR,
		AvgSpO2:      *s.AvgSpO2,
		Weight:       *s.Weight,
		Systolic:     *s.Systolic,
		Diastolic:    *s.Diastolic,
	}, nil
}

// Ingestion accepts device submissions.  Devices authenticate by serial
// only; the owner is always derived from the device.
type Ingestion struct {
	db     *sql.DB
	repos  repository.Manager
	inv    *Inventory
	events EventPublisher
	now    func() time.Time
	log    *zap.Logger
}

// NewIngestion returns an Ingestion service.
func NewIngestion(db *sql.DB, repos repository.Manager, inv *Inventory, events EventPublisher, log *zap.Logger) *Ingestion {
	return &Ingestion{db: db, repos: repos, inv: inv, events: events, now: time.Now, log: log.Named("ingestion")}
}

// Ingest validates sub, resolves the owning user through the serial and
// appends one record stamped with the current UTC time.  Rejected
// submissions store nothing.
func (i *Ingestion) Ingest(ctx context.Context, sub Submission) (*model.VitalsRecord, error) {
	v, err := sub.validate()
	if err != nil {
		return nil, err
	}
	serial := strings.TrimSpace(sub.Serial)

	owner, err := i.inv.LookupOwner(ctx, serial)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnknownDevice
		}
		return nil, err
	}

	rec := &model.VitalsRecord{
		Owner:      owner,
		SerialNum:  serial,
		Vitals:     v,
		RecordedAt: i.now().UTC(),
	}
	if err := i.repos.Vitals(i.db).Append(ctx, rec); err != nil {
		return nil, err
	}

	if err := i.events.PublishVitalsRecorded(ctx, queue.VitalsRecordedEvent{
		Username:   rec.Owner,
		SerialNum:  rec.SerialNum,
		AvgHR:      v.AvgHeartRate,
		AvgSpO2:    v.AvgSpO2,
		Weight:     v.Weight,
		Systolic:   v.Systolic,
		Diastolic:  v.Diastolic,
		RecordedAt: rec.RecordedAt.Format(time.RFC3339),
	}); err != nil {
		i.log.Warn("publish vitals.recorded failed", zap.String("serial", serial), zap.Error(err))
	}
	return rec, nil
}
