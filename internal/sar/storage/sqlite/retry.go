package sqlite

import (
	"strings"
	"time"
)

const (
	busyRetries = 5
	busyBackoff = 20 * time.Millisecond
)

// retryOnBusy reruns fn while SQLite reports the database as locked or
// busy, backing off linearly between attempts.
func (s *RunStore) retryOnBusy(fn func() error) error {
	var err error
	for attempt := range busyRetries {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		if attempt < busyRetries-1 {
			s.clock.Sleep(busyBackoff * time.Duration(attempt+1))
		}
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
