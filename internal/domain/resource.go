package domain

import "time"

// ResourceState represents the allocation state of a single resource
type ResourceState string

const (
	ResourceStateAvailable ResourceState = "AVAILABLE"
	ResourceStateHeld      ResourceState = "HELD"
	ResourceStateBooked    ResourceState = "BOOKED"
)

// ResourceClass groups resources that share a price point (seat type, spot size)
type ResourceClass string

const (
	ResourceClassRegular  ResourceClass = "REGULAR"
	ResourceClassPremium  ResourceClass = "PREMIUM"
	ResourceClassRecliner ResourceClass = "RECLINER"
)

// ResourceSpec describes a resource at group registration time
type ResourceSpec struct {
	Key   string        `json:"key"`
	Class ResourceClass `json:"class,omitempty"`
}

// Resource is one allocatable unit (a seat, a parking spot) inside a group
type Resource struct {
	Key     string        `json:"key"`
	GroupID string        `json:"group_id"`
	Class   ResourceClass `json:"class"`
	State   ResourceState `json:"state"`

	// HolderID is the requester owning the resource while HELD or BOOKED
	HolderID string `json:"holder_id,omitempty"`
	// HoldID is set only while HELD
	HoldID string `json:"hold_id,omitempty"`
	// BookingID is set only while BOOKED
	BookingID string     `json:"booking_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsAvailable returns true if the resource can be held
func (r *Resource) IsAvailable() bool {
	return r.State == ResourceStateAvailable
}

// IsHeldBy returns true if the resource is held by the given hold
func (r *Resource) IsHeldBy(holdID string) bool {
	return r.State == ResourceStateHeld && r.HoldID == holdID
}

// IsBookedBy returns true if the resource is booked by the given booking
func (r *Resource) IsBookedBy(bookingID string) bool {
	return r.State == ResourceStateBooked && r.BookingID == bookingID
}

// ClassAvailability holds per-class counters of a group
type ClassAvailability struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

// Availability summarises the state of a group's resources
type Availability struct {
	GroupID       string                               `json:"group_id"`
	Total         int                                  `json:"total"`
	Available     int                                  `json:"available"`
	Held          int                                  `json:"held"`
	Booked        int                                  `json:"booked"`
	ActiveHolds   int                                  `json:"active_holds"`
	ByClass       map[ResourceClass]*ClassAvailability `json:"by_class"`
	AvailableKeys []string                             `json:"available_keys"`
}
