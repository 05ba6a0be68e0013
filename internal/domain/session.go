package domain

import "time"

// Session records one authenticated connection in the presence roster.
// Sessions live only in memory; a restart empties the roster.
type Session struct {
	ConnectionID string
	Email        string
	LoginAt      time.Time
}
