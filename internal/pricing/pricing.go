package pricing

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/clock"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
)

// Pricing policy names
const (
	NameStandard = "standard"
	NameWeekday  = "weekday"
	NameWeekend  = "weekend"
	NameCalendar = "calendar"
)

// WeekendMultiplier is the surcharge applied on Saturdays and Sundays
const WeekendMultiplier = 1.2

// DefaultPrices maps each resource class to its base price
var DefaultPrices = map[domain.ResourceClass]float64{
	domain.ResourceClassRegular:  50,
	domain.ResourceClassPremium:  80,
	domain.ResourceClassRecliner: 120,
}

// Policy computes the amount charged for a set of held resources.
// Implementations must be pure and safe for concurrent use.
type Policy interface {
	Name() string
	Price(resources []domain.Resource) float64
}

// ClassPricing sums per-class base prices and applies a multiplier
type ClassPricing struct {
	name         string
	prices       map[domain.ResourceClass]float64
	defaultPrice float64
	multiplier   float64
}

// NewClassPricing creates a class based policy. A nil prices map uses DefaultPrices;
// classes missing from the map are charged the regular price.
func NewClassPricing(name string, prices map[domain.ResourceClass]float64, multiplier float64) *ClassPricing {
	if prices == nil {
		prices = DefaultPrices
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	copied := make(map[domain.ResourceClass]float64, len(prices))
	for class, price := range prices {
		copied[class] = price
	}
	return &ClassPricing{
		name:         name,
		prices:       copied,
		defaultPrice: copied[domain.ResourceClassRegular],
		multiplier:   multiplier,
	}
}

// NewStandardPricing charges base class prices
func NewStandardPricing() *ClassPricing {
	return NewClassPricing(NameStandard, nil, 1)
}

// NewWeekendPricing charges base class prices with the weekend surcharge
func NewWeekendPricing() *ClassPricing {
	return NewClassPricing(NameWeekend, nil, WeekendMultiplier)
}

func (p *ClassPricing) Name() string {
	return p.name
}

// Price returns the total rounded to cents
func (p *ClassPricing) Price(resources []domain.Resource) float64 {
	var total float64
	for _, r := range resources {
		price, ok := p.prices[r.Class]
		if !ok {
			price = p.defaultPrice
		}
		total += price
	}
	return roundCents(total * p.multiplier)
}

// CalendarPricing picks the weekday or weekend policy from the clock
type CalendarPricing struct {
	clock   clock.Clock
	weekday Policy
	weekend Policy
}

// NewCalendarPricing creates a calendar driven policy
func NewCalendarPricing(clk clock.Clock) *CalendarPricing {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &CalendarPricing{
		clock:   clk,
		weekday: NewClassPricing(NameWeekday, nil, 1),
		weekend: NewWeekendPricing(),
	}
}

func (p *CalendarPricing) Name() string {
	return NameCalendar
}

func (p *CalendarPricing) Price(resources []domain.Resource) float64 {
	if IsWeekend(p.clock.Now()) {
		return p.weekend.Price(resources)
	}
	return p.weekday.Price(resources)
}

// IsWeekend reports whether t falls on Saturday or Sunday
func IsWeekend(t time.Time) bool {
	day := t.Weekday()
	return day == time.Saturday || day == time.Sunday
}

// Lookup resolves a policy by name. An empty name yields the standard policy.
func Lookup(name string, clk clock.Clock) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameStandard:
		return NewStandardPricing(), nil
	case NameWeekday:
		return NewClassPricing(NameWeekday, nil, 1), nil
	case NameWeekend:
		return NewWeekendPricing(), nil
	case NameCalendar:
		return NewCalendarPricing(clk), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPricing, name)
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
