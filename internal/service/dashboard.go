package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/medhome/internal/analysis"
	"github.com/iliyamo/medhome/internal/model"
	"github.com/iliyamo/medhome/internal/repository"
)

// DefaultReportTitle is used when an export request carries no title.
const DefaultReportTitle = "Health Report"

// Dashboard is the chart payload for one user.  JSON names match the
// dashboard page script.
type Dashboard struct {
	BPM       []float64 `json:"bpm"`
	SpO2      []float64 `json:"spo2"`
	Weight    []float64 `json:"weight"`
	Systolic  []float64 `json:"systolic"`
	Diastolic []float64 `json:"diastolic"`
	Dates     []string  `json:"dates"`
	Findings  string    `json:"theResponse"`
}

// Export is the data behind a printable health report.
type Export struct {
	Title        string    `json:"title"`
	PatientName  string    `json:"patient_name"`
	DeviceSerial string    `json:"device_serial"`
	Dates        []string  `json:"dates"`
	BPM          []float64 `json:"bpm"`
	SpO2         []float64 `json:"spo2"`
	Weight       []float64 `json:"weight"`
	Systolic     []float64 `json:"systolic"`
	Diastolic    []float64 `json:"diastolic"`
	Findings     string    `json:"findings"`
}

// Dashboards builds the read side for signed-in users.
type Dashboards struct {
	db       *sql.DB
	repos    repository.Manager
	analyzer *analysis.Analyzer
}

// NewDashboards returns a Dashboards service.
func NewDashboards(db *sql.DB, repos repository.Manager, analyzer *analysis.Analyzer) *Dashboards {
	return &Dashboards{db: db, repos: repos, analyzer: analyzer}
}

// Profile returns the user record for username.
func (d *Dashboards) Profile(ctx context.Context, username string) (*model.User, error) {
	return d.repos.Users(d.db).GetByUsername(ctx, username)
}

// Window returns up to analysis.WindowSize of the most recent records,
// oldest first.
func (d *Dashboards) Window(ctx context.Context, username string) ([]model.VitalsRecord, error) {
	recs, err := d.repos.Vitals(d.db).ListRecent(ctx, username, analysis.WindowSize)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// Dashboard returns the chart series and findings text for username.
func (d *Dashboards) Dashboard(ctx context.Context, username string) (*Dashboard, error) {
	recs, err := d.Window(ctx, username)
	if err != nil {
		return nil, err
	}
	s := seriesOf(recs, "Jan 02")
	return &Dashboard{
		BPM:       s.bpm,
		SpO2:      s.spo2,
		Weight:    s.weight,
		Systolic:  s.systolic,
		Diastolic: s.diastolic,
		Dates:     s.dates,
		Findings:  d.analyzer.Summarize(s.vitals),
	}, nil
}

// Export assembles a report for username.  ErrNotFound is returned when the
// user is unknown, holds no device or has no readings.
func (d *Dashboards) Export(ctx context.Context, username, title string) (*Export, error) {
	u, err := d.repos.Users(d.db).GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	devices, err := d.repos.Devices(d.db).GetByOwner(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no device for %s", ErrNotFound, username)
	}
	recs, err := d.Window(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no readings for %s", ErrNotFound, username)
	}

	if title = strings.TrimSpace(title); title == "" {
		title = DefaultReportTitle
	}
	s := seriesOf(recs, "2006-01-02")
	return &Export{
		Title:        title,
		PatientName:  u.DisplayName(),
		DeviceSerial: devices[0].SerialNum,
		Dates:        s.dates,
		BPM:          s.bpm,
		SpO2:         s.spo2,
		Weight:       s.weight,
		Systolic:     s.systolic,
		Diastolic:    s.diastolic,
		Findings:     d.analyzer.Summarize(s.vitals),
	}, nil
}

type series struct {
	vitals                                 []model.Vitals
	bpm, spo2, weight, systolic, diastolic []float64
	dates                                  []string
}

func seriesOf(recs []model.VitalsRecord, layout string) series {
	s := series{
		vitals:    make([]model.Vitals, 0, len(recs)),
		bpm:       make([]float64, 0, len(recs)),
		spo2:      make([]float64, 0, len(recs)),
		weight:    make([]float64, 0, len(recs)),
		systolic:  make([]float64, 0, len(recs)),
		diastolic: make([]float64, 0, len(recs)),
		dates:     make([]string, 0, len(recs)),
	}
	for _, r := range recs {
		s.vitals = append(s.vitals, r.Vitals)
		s.bpm = append(s.bpm, r.AvgHeartRate)
		s.spo2 = append(s.spo2, r.AvgSpO2)
		s.weight = append(s.weight, r.Weight)
		s.systolic = append(s.systolic, r.Systolic)
		s.diastolic = append(s.diastolic, r.Diastolic)
		s.dates = append(s.dates, r.RecordedAt.Format(layout))
	}
	return s
}
