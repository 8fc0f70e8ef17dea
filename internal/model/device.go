package model

import "time"

// Device represents a smart chair in the `devices` table.  A device whose
// Owner is nil is unclaimed and eligible for pairing.  Once claimed the
// owner is set exactly once and only cleared by an explicit unassignment.
type Device struct {
    ID        uint64    // devices.id
    SerialNum string    // devices.serial_num (unique, immutable)
    Owner     *string   // devices.username (nullable)
    CreatedAt time.Time // devices.created_at
}

// Claimed reports whether the device has an owner.
func (d Device) Claimed() bool { return d.Owner != nil && *d.Owner != "" }
