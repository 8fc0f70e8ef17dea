package model

import (
    "strings"
    "time"
)

// User represents an account row in the `users` table.  A user is created
// once at signup together with the claim of exactly one device; afterwards
// only the device assignment may change.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name; devices reference it as their owner.
//  FirstName    – given name shown on reports.
//  LastName     – family name shown on reports.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  SerialNum    – serial of the assigned device (nil when unassigned).
//  CreatedAt    – timestamp of creation.
type User struct {
    ID           uint64    // users.id
    Username     string    // users.username
    FirstName    string    // users.first_name
    LastName     string    // users.last_name
    Email        string    // users.email
    PasswordHash string    // users.password
    SerialNum    *string   // users.serial_num (nullable)
    CreatedAt    time.Time // users.created_at
}

// DisplayName returns "First Last" for report headers.
func (u User) DisplayName() string {
    return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Serial returns the assigned serial or an empty string.
func (u User) Serial() string {
    if u.SerialNum == nil {
        return ""
    }
    return *u.SerialNum
}
