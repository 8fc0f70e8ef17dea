// Package queue defines message payloads exchanged over the message broker
// and the RabbitMQ publisher and consumer that move them.
package queue

// Queue names.  Each event type has its own durable queue; the routing key
// equals the queue name on the default exchange.
const (
    DeviceClaimedQueue  = "device.claimed"
    VitalsRecordedQueue = "vitals.recorded"
)

// DeviceClaimedEvent is published after a signup transaction commits and a
// device has been paired with the new account.
type DeviceClaimedEvent struct {
    UserID    uint64 `json:"user_id"`
    Username  string `json:"username"`
    SerialNum string `json:"serial_number"`
    ClaimedAt string `json:"claimed_at"`
}

// VitalsRecordedEvent is published after a device submission is stored.
// It carries the full reading so consumers never query the primary database.
type VitalsRecordedEvent struct {
    Username   string  `json:"username"`
    SerialNum  string  `json:"serial_number"`
    AvgHR      float64 `json:"avgHR"`
    AvgSpO2    float64 `json:"avgSpO2"`
    Weight     float64 `json:"weight"`
    Systolic   float64 `json:"bpS"`
    Diastolic  float64 `json:"bpD"`
    RecordedAt string  `json:"recorded_at"`
}
