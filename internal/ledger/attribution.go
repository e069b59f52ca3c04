package ledger

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// AttributedDay decides which calendar day an entry belongs to. A valid business date
// wins; otherwise the entry lands on the shop-local day it was recorded. Every source
// uses this rule, and it runs once when the entry is written.
func AttributedDay(date *civil.Date, createdAt time.Time, loc *time.Location) civil.Date {
	if isSet(date) {
		return *date
	}
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(createdAt.In(loc))
}

// PaymentDay attributes a payment line. Lines taken together with their sale or purchase
// inherit the record's business date when they carry none; lines added afterwards pass a
// nil fallback and fall through to their own recording time.
func PaymentDay(lineDate *civil.Date, fallback *civil.Date, createdAt time.Time, loc *time.Location) civil.Date {
	if isSet(lineDate) {
		return *lineDate
	}
	return AttributedDay(fallback, createdAt, loc)
}

// ParseDay parses a YYYY-MM-DD calendar day.
func ParseDay(raw string) (civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return civil.Date{}, fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	day, err := civil.ParseDate(raw)
	if err != nil || !day.IsValid() {
		return civil.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return day, nil
}

// ParseOptionalDay returns nil for an empty input.
func ParseOptionalDay(raw string) (*civil.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	day, err := ParseDay(raw)
	if err != nil {
		return nil, err
	}
	return &day, nil
}

// ValidateRange checks start <= end and that the inclusive span fits maxDays.
func ValidateRange(start civil.Date, end civil.Date, maxDays int) error {
	if err := validateDay(start); err != nil {
		return err
	}
	if err := validateDay(end); err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("%w: %s is after %s", ErrInvalidRange, start, end)
	}
	if maxDays > 0 && end.DaysSince(start)+1 > maxDays {
		return fmt.Errorf("%w: more than %d days", ErrInvalidRange, maxDays)
	}
	return nil
}

func validateDay(day civil.Date) error {
	if day == (civil.Date{}) || !day.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidDate, day)
	}
	return nil
}

func isSet(date *civil.Date) bool {
	return date != nil && *date != (civil.Date{}) && date.IsValid()
}
