package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/di"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/dto"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"golang.org/x/sync/errgroup"
)

// simulation describes one simulator run
type simulation struct {
	Groups       int
	Seats        int
	Users        int
	SeatsPerUser int
	Concurrency  int
	TTL          time.Duration
	PaymentDelay time.Duration
	SuccessRate  float64
	Pricing      string
	Seed         uint64
}

// report is the outcome of a run
type report struct {
	Attempts      int
	Confirmed     int
	Unavailable   int
	PaymentFailed int
	HoldExpired   int
	Errors        int
	Revenue       float64
	Elapsed       time.Duration

	Availability []*domain.Availability
	// Violations lists every seat whose final state disagrees with the confirmed bookings
	Violations []string
}

type attempt struct {
	user    string
	groupID string
	keys    []string
}

func (s *simulation) validate() error {
	switch {
	case s.Groups < 1:
		return errors.New("--groups must be at least 1")
	case s.Seats < 1:
		return errors.New("--seats must be at least 1")
	case s.Users < 1:
		return errors.New("--users must be at least 1")
	case s.SeatsPerUser < 1 || s.SeatsPerUser > s.Seats:
		return fmt.Errorf("--seats-per-user must be between 1 and %d", s.Seats)
	case s.TTL <= 0:
		return errors.New("--ttl must be positive")
	case s.SuccessRate < 0 || s.SuccessRate > 1:
		return errors.New("--success-rate must be between 0 and 1")
	}
	return nil
}

func groupID(i int) string {
	return fmt.Sprintf("show-%d", i+1)
}

func seatKey(i int) string {
	return fmt.Sprintf("S%03d", i+1)
}

// plan draws every attempt up front so a seed reproduces the same contention
func (s *simulation) plan() []attempt {
	rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
	attempts := make([]attempt, s.Users)
	for u := range attempts {
		start := rng.IntN(s.Seats - s.SeatsPerUser + 1)
		keys := make([]string, s.SeatsPerUser)
		for k := range keys {
			keys[k] = seatKey(start + k)
		}
		attempts[u] = attempt{
			user:    fmt.Sprintf("user-%d", u+1),
			groupID: groupID(rng.IntN(s.Groups)),
			keys:    keys,
		}
	}
	return attempts
}

func (s *simulation) config(base *config.Config) *config.Config {
	cfg := *base
	cfg.Reservation.HoldTTL = s.TTL
	if s.Pricing != "" {
		cfg.Reservation.Pricing = s.Pricing
	}
	cfg.Payment.Gateway = "mock"
	cfg.Payment.MockSuccessRate = s.SuccessRate
	cfg.Payment.MockDelayMs = int(s.PaymentDelay / time.Millisecond)
	return &cfg
}

// run registers the groups, fires every attempt concurrently and checks the final state
func (s *simulation) run(ctx context.Context, base *config.Config) (*report, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	container, err := di.NewContainer(ctx, &di.ContainerConfig{Config: s.config(base)})
	if err != nil {
		return nil, err
	}
	if err := container.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = container.Close(closeCtx)
	}()

	for g := 0; g < s.Groups; g++ {
		specs := make([]domain.ResourceSpec, s.Seats)
		for i := range specs {
			class := domain.ResourceClassRegular
			if i < s.Seats/10 {
				class = domain.ResourceClassPremium
			}
			specs[i] = domain.ResourceSpec{Key: seatKey(i), Class: class}
		}
		if err := container.Coordinator.RegisterGroup(ctx, groupID(g), specs); err != nil {
			return nil, err
		}
	}

	var (
		mu       sync.Mutex
		rep      = &report{}
		bookings []*dto.BookingResponse
	)

	start := time.Now()
	eg, egCtx := errgroup.WithContext(ctx)
	if s.Concurrency > 0 {
		eg.SetLimit(s.Concurrency)
	}
	for _, a := range s.plan() {
		eg.Go(func() error {
			booking, err := container.BookingService.Reserve(egCtx, a.user, &dto.ReserveRequest{
				GroupID:      a.groupID,
				ResourceKeys: a.keys,
			})

			mu.Lock()
			defer mu.Unlock()
			rep.Attempts++
			if err == nil {
				rep.Confirmed++
				rep.Revenue += booking.TotalPrice
				bookings = append(bookings, booking)
				return nil
			}

			f, ok := domain.AsFailure(err)
			if !ok {
				rep.Errors++
				return nil
			}
			switch f.Kind {
			case domain.FailureResourceUnavailable:
				rep.Unavailable++
			case domain.FailurePaymentFailed:
				rep.PaymentFailed++
			case domain.FailureHoldExpired:
				rep.HoldExpired++
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	rep.Elapsed = time.Since(start)

	violations, err := verify(ctx, container, s.Groups, bookings)
	if err != nil {
		return nil, err
	}
	rep.Violations = violations

	for g := 0; g < s.Groups; g++ {
		availability, err := container.Coordinator.Availability(ctx, groupID(g))
		if err != nil {
			return nil, err
		}
		rep.Availability = append(rep.Availability, availability)
	}
	return rep, nil
}

// verify checks that every seat is booked by at most one confirmed booking and
// that no seat is left HELD once all attempts finished
func verify(ctx context.Context, container *di.Container, groups int, bookings []*dto.BookingResponse) ([]string, error) {
	var violations []string

	owner := make(map[string]string)
	for _, b := range bookings {
		for _, key := range b.ResourceKeys {
			slot := b.GroupID + "/" + key
			if prev, ok := owner[slot]; ok {
				violations = append(violations, fmt.Sprintf("%s confirmed for both %s and %s", slot, prev, b.ID))
				continue
			}
			owner[slot] = b.ID
		}
	}

	for g := 0; g < groups; g++ {
		resources, err := container.Coordinator.Snapshot(ctx, groupID(g))
		if err != nil {
			return nil, err
		}
		for _, r := range resources {
			slot := groupID(g) + "/" + r.Key
			want, booked := owner[slot]
			switch {
			case r.State == domain.ResourceStateHeld:
				violations = append(violations, fmt.Sprintf("%s still held by %s", slot, r.HoldID))
			case booked && !r.IsBookedBy(want):
				violations = append(violations, fmt.Sprintf("%s should be booked by %s but is %s", slot, want, r.State))
			case !booked && r.State == domain.ResourceStateBooked:
				violations = append(violations, fmt.Sprintf("%s booked by unknown booking %s", slot, r.BookingID))
			}
		}
	}

	sort.Strings(violations)
	return violations, nil
}

func (r *report) print(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "attempts\t%d\n", r.Attempts)
	fmt.Fprintf(tw, "confirmed\t%d\n", r.Confirmed)
	fmt.Fprintf(tw, "resource unavailable\t%d\n", r.Unavailable)
	fmt.Fprintf(tw, "payment failed\t%d\n", r.PaymentFailed)
	fmt.Fprintf(tw, "hold expired\t%d\n", r.HoldExpired)
	fmt.Fprintf(tw, "errors\t%d\n", r.Errors)
	fmt.Fprintf(tw, "revenue\t%.2f\n", r.Revenue)
	fmt.Fprintf(tw, "elapsed\t%s\n", r.Elapsed.Round(time.Millisecond))
	tw.Flush()

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tTOTAL\tAVAILABLE\tHELD\tBOOKED")
	for _, a := range r.Availability {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", a.GroupID, a.Total, a.Available, a.Held, a.Booked)
	}
	tw.Flush()

	fmt.Fprintln(w)
	if len(r.Violations) == 0 {
		fmt.Fprintln(w, "verification passed: no seat was double booked")
		return
	}
	fmt.Fprintf(w, "verification FAILED (%d violations):\n", len(r.Violations))
	for _, v := range r.Violations {
		fmt.Fprintf(w, "  %s\n", v)
	}
}
