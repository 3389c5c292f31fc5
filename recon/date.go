package recon

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day, the canonical representation after normalization
// =============================================================================

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates any time to its calendar day in UTC.
func DateOf(t time.Time) Date { return NewDate(t.Year(), t.Month(), t.Day()) }

func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(CanonicalDateLayout)
}

// CanonicalDateLayout is used for every date rendered by the engine.
const CanonicalDateLayout = "2006-01-02"

// =============================================================================
// DATE RULES - Each source declares how its dates are written
// =============================================================================

// DateRule parses a date cell for one source. Partner and LMS systems are
// known to use different notations, so every source carries its own rule.
type DateRule interface {
	ParseDate(s string) (Date, error)
	String() string
}

// LayoutRule accepts the first Go time layout that parses the cell.
type LayoutRule struct {
	Layouts []string
}

func NewLayoutRule(layouts ...string) LayoutRule { return LayoutRule{Layouts: layouts} }

func (r LayoutRule) ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("date is empty")
	}
	for _, layout := range r.Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("date %q does not match %s", s, r)
}

func (r LayoutRule) String() string { return strings.Join(r.Layouts, " | ") }

// Layouts the upstream systems are documented to use.
const (
	PartnerDateLayout = "2006/01/02"
	LMSDateLayout     = "2006-01-02"
	SystemDateLayout  = "2006-01-02"
)

// MarshalJSON renders the canonical layout, zero dates as null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(CanonicalDateLayout, s)
	if err != nil {
		return err
	}
	*d = DateOf(t)
	return nil
}
