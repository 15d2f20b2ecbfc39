/*
Package generic provides the domain-agnostic primitives of the leave ledger.

PURPOSE:
  Quantities, identifiers, calendar dates, periods, holiday calendars,
  the error taxonomy, and the audit log contract. The leave package
  builds its balance and request semantics on top of these.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 3 days, 0.5 days)
  - EntityID / RequestID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so half-days never drift
  2. Type Safety: Strong typing for IDs prevents mixing employee/request IDs

USAGE:
  days := generic.NewAmount(2.5, generic.UnitDays)
  if available.LessThan(days) {
      ...
  }

SEE ALSO:
  - time.go: TimePoint and holiday calendars
  - period.go: Closed date ranges and overlap
  - errors.go: Error taxonomy
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit (always days for leave)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays Unit = "days"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// Days is shorthand for NewAmount(value, UnitDays).
func Days(value float64) Amount {
	return NewAmount(value, UnitDays)
}

// ZeroDays is an empty day quantity.
func ZeroDays() Amount {
	return Amount{Value: decimal.Zero, Unit: UnitDays}
}

// ParseAmount parses a decimal string such as "2.5".
func ParseAmount(s string, unit Unit) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d, Unit: unit}, nil
}

func (a Amount) Add(b Amount) Amount        { return Amount{Value: a.Value.Add(b.Value), Unit: a.unit()} }
func (a Amount) Sub(b Amount) Amount        { return Amount{Value: a.Value.Sub(b.Value), Unit: a.unit()} }
func (a Amount) IsNegative() bool           { return a.Value.IsNegative() }
func (a Amount) IsZero() bool               { return a.Value.IsZero() }
func (a Amount) IsPositive() bool           { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool  { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool     { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool        { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThanOrEqual(b Amount) bool {
	return a.Value.GreaterThanOrEqual(b.Value)
}

var halfDay = decimal.NewFromFloat(0.5)

// IsHalfDayMultiple reports whether a is a whole number of half days.
// Stores keep one decimal place, so finer quantities cannot round-trip.
func (a Amount) IsHalfDayMultiple() bool {
	return a.Value.Mod(halfDay).IsZero()
}

// Float64 is used at the storage and JSON boundaries. Leave quantities are
// multiples of 0.5, which float64 represents exactly.
func (a Amount) Float64() float64 {
	return a.Value.InexactFloat64()
}

func (a Amount) String() string {
	return a.Value.String() + " " + string(a.unit())
}

func (a Amount) unit() Unit {
	if a.Unit == "" {
		return UnitDays
	}
	return a.Unit
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EntityID identifies a person: the employee who owns a balance or the
// user acting on a request.
type EntityID string

// RequestID identifies a leave request.
type RequestID string
