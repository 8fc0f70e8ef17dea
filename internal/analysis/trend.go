// Package analysis turns a week of daily vitals into qualitative findings.
// Everything here is pure: no storage, no clock, no logging.
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/iliyamo/medhome/internal/model"
)

// WindowSize is the number of daily records a full analysis needs.
const WindowSize = 7

// InsufficientData is reported instead of any finding when fewer than
// WindowSize records exist.
const InsufficientData = "Not enough data points to perform a full analysis. Please track at least 7 days.\n"

// Thresholds.
const (
	weightSlopeLimit = 2.0
	heartSlopeLimit  = 5.0
	spo2LowMax       = 94.0
	spo2LowDaysMax   = 4
	systolicLimit    = 130.0
	diastolicLimit   = 80.0
	bpHighDaysMin    = 4
)

// ErrWindowSize is returned by Analyze for a window that is not exactly
// WindowSize records long.
var ErrWindowSize = errors.New("analysis: window must hold exactly 7 records")

// Mode selects how the slope checks chain their branches.
type Mode int

const (
	// BranchExclusive emits exactly one of decrease, increase or normal.
	BranchExclusive Mode = iota
	// BranchLegacy reproduces the if / if-else chain of the first
	// release: a steep decrease is followed by the normal finding, while a
	// steep increase suppresses it.
	BranchLegacy
)

// ParseMode maps "legacy" and "exclusive" (or "") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exclusive":
		return BranchExclusive, nil
	case "legacy":
		return BranchLegacy, nil
	}
	return BranchExclusive, fmt.Errorf("analysis: unknown branch mode %q", s)
}

// Metric names a family of readings.
type Metric string

const (
	HeartRate     Metric = "heart_rate"
	Oxygen        Metric = "oxygen"
	Weight        Metric = "weight"
	BloodPressure Metric = "blood_pressure"
)

// Level classifies a finding.
type Level string

const (
	LevelNormal    Level = "normal"
	LevelImproving Level = "improving"
	LevelAlert     Level = "alert"
)

// Finding is one sentence about one metric.
type Finding struct {
	Metric Metric  `json:"metric"`
	Level  Level   `json:"level"`
	Text   string  `json:"text"`
	Slope  float64 `json:"slope,omitempty"`
	Count  int     `json:"count,omitempty"`
}

// Report is the ordered list of findings: heart rate, oxygen, weight,
// blood pressure.
type Report struct {
	Findings []Finding `json:"findings"`
}

// String concatenates the finding texts in order.
func (r Report) String() string {
	var b strings.Builder
	for _, f := range r.Findings {
		b.WriteString(f.Text)
	}
	return b.String()
}

// Alerts returns the findings that recommend seeing a doctor.
func (r Report) Alerts() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Level == LevelAlert {
			out = append(out, f)
		}
	}
	return out
}

// Analyzer computes trend findings.  The zero value uses BranchExclusive.
type Analyzer struct {
	mode Mode
}

// New returns an Analyzer using mode.
func New(mode Mode) *Analyzer { return &Analyzer{mode: mode} }

// Summarize returns the findings text for a chronological window, or
// InsufficientData when it has fewer than WindowSize records.  Longer
// windows are trimmed to their most recent WindowSize records.
func (a *Analyzer) Summarize(window []model.Vitals) string {
	if len(window) < WindowSize {
		return InsufficientData
	}
	r, err := a.Analyze(window[len(window)-WindowSize:])
	if err != nil {
		return InsufficientData
	}
	return r.String()
}

// Analyze evaluates a chronological window (oldest first) of exactly
// WindowSize records.
func (a *Analyzer) Analyze(window []model.Vitals) (Report, error) {
	if len(window) != WindowSize {
		return Report{}, ErrWindowSize
	}
	hr := make([]float64, len(window))
	spo2 := make([]float64, len(window))
	weight := make([]float64, len(window))
	for i, v := range window {
		hr[i] = v.AvgHeartRate
		spo2[i] = v.AvgSpO2
		weight[i] = v.Weight
	}

	var r Report
	hrFindings, err := a.heartRate(hr)
	if err != nil {
		return Report{}, err
	}
	r.Findings = append(r.Findings, hrFindings...)
	r.Findings = append(r.Findings, oxygen(spo2))
	wFindings, err := a.weight(weight)
	if err != nil {
		return Report{}, err
	}
	r.Findings = append(r.Findings, wFindings...)
	r.Findings = append(r.Findings, bloodPressure(window))
	return r, nil
}

func (a *Analyzer) heartRate(series []float64) ([]Finding, error) {
	m, err := Slope(series)
	if err != nil {
		return nil, err
	}
	down := Finding{Metric: HeartRate, Level: LevelImproving, Slope: m,
		Text: "Heart rate decreased overall in the past week. Cardiovascular health is getting better. "}
	up := Finding{Metric: HeartRate, Level: LevelAlert, Slope: m,
		Text: "Heart rate increase in the past week is too steep. Please refer to a doctor. "}
	normal := Finding{Metric: HeartRate, Level: LevelNormal, Slope: m,
		Text: "Heart rate trends are normal. "}
	return a.branch(m, heartSlopeLimit, down, up, normal), nil
}

func (a *Analyzer) weight(series []float64) ([]Finding, error) {
	m, err := Slope(series)
	if err != nil {
		return nil, err
	}
	down := Finding{Metric: Weight, Level: LevelAlert, Slope: m,
		Text: "Weight loss in the past week is too steep. Please refer to a doctor. "}
	up := Finding{Metric: Weight, Level: LevelAlert, Slope: m,
		Text: "Weight gain in the past week is too steep. Please refer to a doctor. "}
	normal := Finding{Metric: Weight, Level: LevelNormal, Slope: m,
		Text: "Weight trends are normal. "}
	return a.branch(m, weightSlopeLimit, down, up, normal), nil
}

func (a *Analyzer) branch(m, limit float64, down, up, normal Finding) []Finding {
	if a.mode == BranchLegacy {
		var out []Finding
		if m < -limit {
			out = append(out, down)
		}
		if m > limit {
			out = append(out, up)
		} else {
			out = append(out, normal)
		}
		return out
	}
	switch {
	case m < -limit:
		return []Finding{down}
	case m > limit:
		return []Finding{up}
	default:
		return []Finding{normal}
	}
}

func oxygen(series []float64) Finding {
	low := 0
	for _, v := range series {
		if v <= spo2LowMax {
			low++
		}
	}
	if low > spo2LowDaysMax {
		return Finding{Metric: Oxygen, Level: LevelAlert, Count: low,
			Text: "Oxygen levels are too low in the past week. Please refer to a doctor. "}
	}
	return Finding{Metric: Oxygen, Level: LevelNormal, Count: low, Text: "Oxygen levels are normal. "}
}

func bloodPressure(window []model.Vitals) Finding {
	high := 0
	for _, v := range window {
		if v.Systolic > systolicLimit && v.Diastolic > diastolicLimit {
			high++
		}
	}
	if high >= bpHighDaysMin {
		return Finding{Metric: BloodPressure, Level: LevelAlert, Count: high,
			Text: "Blood pressure levels are abnormal in the past week. Please refer to a doctor. "}
	}
	return Finding{Metric: BloodPressure, Level: LevelNormal, Count: high, Text: "Blood pressure levels are normal. "}
}

// Slope returns the least-squares slope of series against day indexes
// 1..len(series).
func Slope(series []float64) (float64, error) {
	if len(series) < 2 {
		return 0, fmt.Errorf("analysis: slope needs at least 2 points, got %d", len(series))
	}
	days := make(stats.Float64Data, len(series))
	for i := range days {
		days[i] = float64(i + 1)
	}
	cov, err := stats.Covariance(days, stats.Float64Data(series))
	if err != nil {
		return 0, err
	}
	variance, err := stats.SampleVariance(days)
	if err != nil {
		return 0, err
	}
	return cov / variance, nil
}
