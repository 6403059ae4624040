// Package intent provides the canonical representation of a proposed
// action derived from email content: a payment or a calendar booking,
// plus provenance metadata from the extraction step.
//
// Intents are immutable once constructed. All validation happens in the
// constructors; an Intent that exists is a valid Intent.
package intent

import (
	"fmt"
)

// Kind categorizes the proposed action.
type Kind string

const (
	KindPayment  Kind = "payment"
	KindSchedule Kind = "schedule"
)

// Timestamp bounds accepted at construction. The upper bound is a fixed
// horizon rather than a clock read so that validation is deterministic.
const (
	minTimestamp int64 = 0          // Unix epoch
	maxTimestamp int64 = 4102444800 // 2100-01-01T00:00:00Z
)

// Provenance records where an intent came from. It is carried for audit
// and as conditional-rule input; it never short-circuits evaluation.
type Provenance struct {
	// Confidence is the extraction confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// SourceHash references the source text (content hash), for audit.
	SourceHash string `json:"source_hash,omitempty"`
}

// Intent is a proposed payment or schedule action. Amounts are integers
// in the smallest currency unit; there is no floating point money.
type Intent struct {
	Kind       Kind       `json:"kind"`
	Amount     int64      `json:"amount"`
	Recipient  string     `json:"recipient"`
	Vendor     string     `json:"vendor"`
	Category   string     `json:"category"`
	Timestamp  int64      `json:"timestamp"` // Unix seconds, proposed execution time
	Provenance Provenance `json:"provenance"`
}

// ValidationError names the field that failed construction validation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intent: invalid %s: %s", e.Field, e.Msg)
}

// New constructs a validated payment or schedule intent.
//
// Rules: amount must be non-negative; timestamp must be a sane Unix time
// (not before the epoch, not past 2100); confidence must be in [0,1].
// An unrecognized category is defaulted to "other", never rejected.
func New(kind Kind, amount int64, recipient, vendor, category string, timestamp int64, prov Provenance) (*Intent, error) {
	if kind != KindPayment && kind != KindSchedule {
		return nil, &ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown kind %q", kind)}
	}
	if amount < 0 {
		return nil, &ValidationError{Field: "amount", Msg: fmt.Sprintf("must be non-negative, got %d", amount)}
	}
	if timestamp < minTimestamp {
		return nil, &ValidationError{Field: "timestamp", Msg: fmt.Sprintf("before Unix epoch: %d", timestamp)}
	}
	if timestamp > maxTimestamp {
		return nil, &ValidationError{Field: "timestamp", Msg: fmt.Sprintf("beyond year-2100 horizon: %d", timestamp)}
	}
	if prov.Confidence < 0 || prov.Confidence > 1 {
		return nil, &ValidationError{Field: "provenance.confidence", Msg: fmt.Sprintf("must be in [0,1], got %v", prov.Confidence)}
	}
	if !IsKnownCategory(category) {
		category = CategoryOther
	}
	return &Intent{
		Kind:       kind,
		Amount:     amount,
		Recipient:  recipient,
		Vendor:     vendor,
		Category:   category,
		Timestamp:  timestamp,
		Provenance: prov,
	}, nil
}

// Hour returns the hour-of-day (0-23) of the proposed execution time in UTC.
// Derived arithmetically from Unix seconds so that the manual evaluator and
// the proof circuit agree bit-for-bit.
func (i *Intent) Hour() int {
	return int((i.Timestamp / 3600) % 24)
}

// Weekday returns the day-of-week (0=Sunday .. 6=Saturday) in UTC.
// The epoch (1970-01-01) was a Thursday, hence the +4 offset.
func (i *Intent) Weekday() int {
	return int((i.Timestamp/86400 + 4) % 7)
}
