package intent

import "errors"

// ExtractionType classifies what the AI extraction step found in an email.
type ExtractionType string

const (
	ExtractionInvoice  ExtractionType = "Invoice"
	ExtractionSchedule ExtractionType = "Schedule"
	ExtractionOther    ExtractionType = "Other"
)

// ErrNotActionable is returned when an extraction result carries nothing
// that maps to an intent (type Other). It is not a validation failure.
var ErrNotActionable = errors.New("intent: extraction result is not actionable")

// ExtractionResult is the structured output of the (external) AI extraction
// collaborator. Only the Invoice/Schedule subset is consumed here.
type ExtractionResult struct {
	Type       ExtractionType `json:"type"`
	Confidence float64        `json:"confidence"`
	SourceHash string         `json:"source_hash,omitempty"`

	// Invoice fields.
	Amount    *int64 `json:"amount,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	DueDate   *int64 `json:"due_date,omitempty"` // Unix seconds

	// Schedule fields.
	Title     string `json:"title,omitempty"`
	StartTime *int64 `json:"start_time,omitempty"` // Unix seconds
	EndTime   *int64 `json:"end_time,omitempty"`
	Location  string `json:"location,omitempty"`
}

// FromExtraction bridges an extraction result to a validated Intent.
//
// Invoice results become payment intents executed at the due date;
// Schedule results become zero-amount schedule intents at the start time.
// Other results return ErrNotActionable. Missing required fields surface
// as ValidationError naming the field.
func FromExtraction(res ExtractionResult) (*Intent, error) {
	switch res.Type {
	case ExtractionInvoice:
		if res.Amount == nil {
			return nil, &ValidationError{Field: "amount", Msg: "invoice extraction missing amount"}
		}
		if res.DueDate == nil {
			return nil, &ValidationError{Field: "due_date", Msg: "invoice extraction missing due date"}
		}
		return New(KindPayment, *res.Amount, res.Recipient, res.Vendor,
			InferCategory(res.Vendor), *res.DueDate,
			Provenance{Confidence: res.Confidence, SourceHash: res.SourceHash})
	case ExtractionSchedule:
		if res.StartTime == nil {
			return nil, &ValidationError{Field: "start_time", Msg: "schedule extraction missing start time"}
		}
		return New(KindSchedule, 0, res.Location, res.Title,
			InferCategory(res.Title), *res.StartTime,
			Provenance{Confidence: res.Confidence, SourceHash: res.SourceHash})
	default:
		return nil, ErrNotActionable
	}
}
