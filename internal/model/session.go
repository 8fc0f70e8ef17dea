package model

import "time"

// Session models a row in the `sessions` table.  The ID is the opaque
// bearer token handed to the client; it is deleted on logout.  Sessions
// cascade away with their user.
type Session struct {
    ID        string    // sessions.id
    UserID    uint64    // sessions.user_id
    CreatedAt time.Time // sessions.created_at
}

// Expired reports whether the session is older than maxAge at now.  A
// non-positive maxAge never expires.
func (s Session) Expired(now time.Time, maxAge time.Duration) bool {
    if maxAge <= 0 {
        return false
    }
    return now.Sub(s.CreatedAt) > maxAge
}
