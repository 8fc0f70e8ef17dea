package model

import "time"

// Vitals holds one day's aggregate readings from a chair.
type Vitals struct {
    AvgHeartRate float64 `json:"avgHR"`
    AvgSpO2      float64 `json:"avgSpO2"`
    Weight       float64 `json:"weight"`
    Systolic     float64 `json:"bpS"`
    Diastolic    float64 `json:"bpD"`
}

// VitalsRecord mirrors the append-only `vitals` table.  The owner is
// resolved through the device at ingestion time, never supplied by the
// client.
type VitalsRecord struct {
    ID         uint64    // vitals.id
    Owner      string    // vitals.username
    SerialNum  string    // vitals.serial_num
    Vitals               // avg_hr, avg_spo2, weight, bp_systolic, bp_diastolic
    RecordedAt time.Time // vitals.created_at
}
