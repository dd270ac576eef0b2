package domain

import "time"

// HoldStatus represents the lifecycle of a hold
type HoldStatus string

const (
	HoldStatusRequested HoldStatus = "REQUESTED"
	HoldStatusHeld      HoldStatus = "HELD"
	HoldStatusConfirmed HoldStatus = "CONFIRMED"
	HoldStatusExpired   HoldStatus = "EXPIRED"
	HoldStatusReleased  HoldStatus = "RELEASED"
)

// HoldToken references a hold recorded by the registry.
// The hold record itself never leaves the registry.
type HoldToken struct {
	HoldID    string
	GroupID   string
	HolderID  string
	Resources []Resource
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ResourceKeys returns the keys of the held resources in request order
func (t *HoldToken) ResourceKeys() []string {
	keys := make([]string, len(t.Resources))
	for i, r := range t.Resources {
		keys[i] = r.Key
	}
	return keys
}

// TTL returns the duration the hold was granted for
func (t *HoldToken) TTL() time.Duration {
	return t.ExpiresAt.Sub(t.CreatedAt)
}

// IsExpiredAt returns true if the hold deadline has passed at the given instant
func (t *HoldToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
