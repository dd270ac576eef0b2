package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/booking-rush-reservation/internal/clock"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
)

// Config contains configuration for the registry
type Config struct {
	Clock clock.Clock
	// NewHoldID generates hold identifiers (default: uuid v4)
	NewHoldID func() string
	// DefaultClass is assigned to resources registered without a class
	DefaultClass domain.ResourceClass
}

// Registry is the authoritative in-memory store of resource state.
// Every group owns its own mutex; operations on one group are totally
// ordered by that mutex and never block other groups.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*group

	clock        clock.Clock
	newHoldID    func() string
	defaultClass domain.ResourceClass
}

type group struct {
	id string

	mu        sync.Mutex
	resources map[string]*domain.Resource
	order     []string
	holds     map[string]*hold
}

type hold struct {
	id        string
	holderID  string
	keys      []string
	createdAt time.Time
	expiresAt time.Time
}

// New creates a new registry
func New(cfg *Config) *Registry {
	r := &Registry{
		groups:       make(map[string]*group),
		clock:        clock.NewSystem(),
		newHoldID:    func() string { return uuid.New().String() },
		defaultClass: domain.ResourceClassRegular,
	}
	if cfg != nil {
		if cfg.Clock != nil {
			r.clock = cfg.Clock
		}
		if cfg.NewHoldID != nil {
			r.newHoldID = cfg.NewHoldID
		}
		if cfg.DefaultClass != "" {
			r.defaultClass = cfg.DefaultClass
		}
	}
	return r
}

// RegisterGroup creates a group and all of its resources in state AVAILABLE.
// The group's exclusion domain is created here, before any hold can reach it.
func (r *Registry) RegisterGroup(groupID string, specs []domain.ResourceSpec) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return domain.ErrInvalidGroupID
	}
	if len(specs) == 0 {
		return domain.ErrEmptyResourceSet
	}

	g := &group{
		id:        groupID,
		resources: make(map[string]*domain.Resource, len(specs)),
		order:     make([]string, 0, len(specs)),
		holds:     make(map[string]*hold),
	}
	for _, spec := range specs {
		key := strings.TrimSpace(spec.Key)
		if key == "" {
			return domain.ErrInvalidResourceKey
		}
		if _, exists := g.resources[key]; exists {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateResource, key)
		}
		class := spec.Class
		if class == "" {
			class = r.defaultClass
		}
		g.resources[key] = &domain.Resource{
			Key:     key,
			GroupID: groupID,
			Class:   class,
			State:   domain.ResourceStateAvailable,
		}
		g.order = append(g.order, key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.groups[groupID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrGroupAlreadyExists, groupID)
	}
	r.groups[groupID] = g
	return nil
}

// TryHold holds every requested resource or none of them.
// A rejection lists each requested resource that was not AVAILABLE.
func (r *Registry) TryHold(groupID string, keys []string, holderID string, ttl time.Duration) (*domain.HoldToken, error) {
	if holderID == "" {
		return nil, domain.ErrInvalidHolderID
	}
	if ttl <= 0 {
		return nil, domain.ErrInvalidTTL
	}
	if len(keys) == 0 {
		return nil, domain.ErrEmptyResourceSet
	}
	if err := checkDuplicates(keys); err != nil {
		return nil, err
	}

	g, err := r.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var conflicts []domain.ResourceConflict
	for _, key := range keys {
		res, ok := g.resources[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s in group %s", domain.ErrUnknownResource, key, groupID)
		}
		if !res.IsAvailable() {
			conflicts = append(conflicts, domain.ResourceConflict{Key: key, State: res.State})
		}
	}
	if len(conflicts) > 0 {
		return nil, &domain.UnavailableError{GroupID: groupID, Conflicts: conflicts}
	}

	now := r.clock.Now()
	h := &hold{
		id:        r.newHoldID(),
		holderID:  holderID,
		keys:      append([]string(nil), keys...),
		createdAt: now,
		expiresAt: now.Add(ttl),
	}

	token := &domain.HoldToken{
		HoldID:    h.id,
		GroupID:   groupID,
		HolderID:  holderID,
		Resources: make([]domain.Resource, 0, len(keys)),
		CreatedAt: h.createdAt,
		ExpiresAt: h.expiresAt,
	}
	for _, key := range keys {
		res := g.resources[key]
		expiresAt := h.expiresAt
		res.State = domain.ResourceStateHeld
		res.HolderID = holderID
		res.HoldID = h.id
		res.ExpiresAt = &expiresAt
		token.Resources = append(token.Resources, *res)
	}
	g.holds[h.id] = h

	return token, nil
}

// Confirm promotes a hold to a booking.
// Returns ErrHoldNotFound when the hold was already resolved and ErrHoldExpired
// when the hold still exists but its deadline has passed; in that case the hold
// is released before returning.
func (r *Registry) Confirm(token *domain.HoldToken) error {
	g, h, err := r.lockHold(token)
	if err != nil {
		return err
	}
	defer g.mu.Unlock()

	if r.clock.Now().After(h.expiresAt) {
		g.releaseLocked(h)
		return domain.ErrHoldExpired
	}

	for _, key := range h.keys {
		res := g.resources[key]
		res.State = domain.ResourceStateBooked
		res.BookingID = h.id
		res.HoldID = ""
		res.ExpiresAt = nil
	}
	delete(g.holds, h.id)
	return nil
}

// Release returns a hold's resources to AVAILABLE. Calling it again for the
// same token returns ErrHoldNotFound and changes nothing.
func (r *Registry) Release(token *domain.HoldToken) error {
	g, h, err := r.lockHold(token)
	if err != nil {
		return err
	}
	defer g.mu.Unlock()

	g.releaseLocked(h)
	return nil
}

// CancelBooking returns the resources booked by bookingID to AVAILABLE.
// Only keys still owned by that booking are touched. Returns the number of
// released resources, or ErrBookingNotFound if none were owned.
func (r *Registry) CancelBooking(groupID, bookingID string, keys []string) (int, error) {
	if bookingID == "" {
		return 0, domain.ErrInvalidBooking
	}
	if len(keys) == 0 {
		return 0, domain.ErrEmptyResourceSet
	}

	g, err := r.group(groupID)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	released := 0
	for _, key := range keys {
		res, ok := g.resources[key]
		if !ok || !res.IsBookedBy(bookingID) {
			continue
		}
		resetResource(res)
		released++
	}
	if released == 0 {
		return 0, domain.ErrBookingNotFound
	}
	return released, nil
}

// Snapshot returns a copy of every resource in registration order
func (r *Registry) Snapshot(groupID string) ([]domain.Resource, error) {
	g, err := r.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.Resource, 0, len(g.order))
	for _, key := range g.order {
		res := *g.resources[key]
		if res.ExpiresAt != nil {
			at := *res.ExpiresAt
			res.ExpiresAt = &at
		}
		out = append(out, res)
	}
	return out, nil
}

// Availability counts resources per state and class
func (r *Registry) Availability(groupID string) (*domain.Availability, error) {
	g, err := r.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	av := &domain.Availability{
		GroupID:       groupID,
		Total:         len(g.order),
		ActiveHolds:   len(g.holds),
		ByClass:       make(map[domain.ResourceClass]*domain.ClassAvailability),
		AvailableKeys: make([]string, 0, len(g.order)),
	}
	for _, key := range g.order {
		res := g.resources[key]
		ca, ok := av.ByClass[res.Class]
		if !ok {
			ca = &domain.ClassAvailability{}
			av.ByClass[res.Class] = ca
		}
		ca.Total++

		switch res.State {
		case domain.ResourceStateAvailable:
			av.Available++
			ca.Available++
			av.AvailableKeys = append(av.AvailableKeys, key)
		case domain.ResourceStateHeld:
			av.Held++
		case domain.ResourceStateBooked:
			av.Booked++
		}
	}
	return av, nil
}

// ExpiredHolds returns tokens for every hold whose deadline is before now
func (r *Registry) ExpiredHolds(now time.Time) []*domain.HoldToken {
	r.mu.RLock()
	groups := make([]*group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g)
	}
	r.mu.RUnlock()

	var tokens []*domain.HoldToken
	for _, g := range groups {
		g.mu.Lock()
		for _, h := range g.holds {
			if now.After(h.expiresAt) {
				tokens = append(tokens, g.tokenLocked(h))
			}
		}
		g.mu.Unlock()
	}
	return tokens
}

// Groups returns registered group IDs sorted
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) group(groupID string) (*group, error) {
	if groupID == "" {
		return nil, domain.ErrInvalidGroupID
	}
	r.mu.RLock()
	g, ok := r.groups[groupID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGroupNotFound, groupID)
	}
	return g, nil
}

// lockHold locks the token's group and returns its live hold.
// On success the caller must unlock g.mu.
func (r *Registry) lockHold(token *domain.HoldToken) (*group, *hold, error) {
	if token == nil || token.HoldID == "" {
		return nil, nil, domain.ErrInvalidHoldToken
	}
	g, err := r.group(token.GroupID)
	if err != nil {
		return nil, nil, err
	}

	g.mu.Lock()
	h, ok := g.holds[token.HoldID]
	if !ok || h.holderID != token.HolderID {
		g.mu.Unlock()
		return nil, nil, domain.ErrHoldNotFound
	}
	return g, h, nil
}

// releaseLocked frees resources still held by h and drops the hold record
func (g *group) releaseLocked(h *hold) {
	for _, key := range h.keys {
		if res := g.resources[key]; res.IsHeldBy(h.id) {
			resetResource(res)
		}
	}
	delete(g.holds, h.id)
}

func (g *group) tokenLocked(h *hold) *domain.HoldToken {
	token := &domain.HoldToken{
		HoldID:    h.id,
		GroupID:   g.id,
		HolderID:  h.holderID,
		Resources: make([]domain.Resource, 0, len(h.keys)),
		CreatedAt: h.createdAt,
		ExpiresAt: h.expiresAt,
	}
	for _, key := range h.keys {
		token.Resources = append(token.Resources, *g.resources[key])
	}
	return token
}

func resetResource(res *domain.Resource) {
	res.State = domain.ResourceStateAvailable
	res.HolderID = ""
	res.HoldID = ""
	res.BookingID = ""
	res.ExpiresAt = nil
}

func checkDuplicates(keys []string) error {
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			return domain.ErrInvalidResourceKey
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateResource, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
