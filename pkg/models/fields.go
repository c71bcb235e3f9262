package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Classification routes supported by the zero-shot classifier.
const (
	RouteRefund        = "refund"
	RouteNotReceived   = "not_received"
	RouteWarranty      = "warranty"
	RouteAddressChange = "address_change"
	RouteHowTo         = "how_to"
	RouteOther         = "other"
)

// Routes returns the closed label set, in scoring order.
func Routes() []string {
	return []string{RouteRefund, RouteNotReceived, RouteWarranty, RouteAddressChange, RouteHowTo, RouteOther}
}

// Field provenance values used in NormalizedFields.Source.
const (
	SourceDocQA = "docqa"
	SourceRegex = "regex"
)

// Date is a calendar date serialized as "2006-01-02".
type Date struct {
	time.Time
}

// NewDate builds a Date from year, month, day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// MarshalJSON renders the date as a quoted ISO day.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

// UnmarshalJSON parses a quoted ISO day; null leaves the zero value.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", s)
	}
	t, err := time.Parse("2006-01-02", s[1:len(s)-1])
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// DocFields is the structured fact set extracted from a single document
// by the DocQA stage. Confidence is per-field in [0,1]; absent entries
// mean "no confidence information".
type DocFields struct {
	OrderID    *string            `json:"order_id"`
	Amount     *decimal.Decimal   `json:"amount"`
	Currency   *string            `json:"currency"`
	OrderDate  *Date              `json:"order_date"`
	SKU        *string            `json:"sku"`
	Confidence map[string]float64 `json:"confidence"`
}

// EmptyDocFields returns a DocFields with no values and an empty
// confidence map, used when no DocQA result exists for a message.
func EmptyDocFields() DocFields {
	return DocFields{Confidence: map[string]float64{}}
}

// FieldConfidence returns the confidence for a field, 0 when unknown.
func (f DocFields) FieldConfidence(field string) float64 {
	if f.Confidence == nil {
		return 0
	}
	return f.Confidence[field]
}

// NormalizedFields is the post-merge representation: DocFields values
// reconciled with regex extraction over body text and transcript, plus
// per-field provenance. Source holds an entry exactly for the fields
// whose value is non-null.
type NormalizedFields struct {
	OrderID    *string            `json:"order_id"`
	Amount     *decimal.Decimal   `json:"amount"`
	Currency   *string            `json:"currency"`
	OrderDate  *Date              `json:"order_date"`
	SKU        *string            `json:"sku"`
	Confidence map[string]float64 `json:"confidence"`
	Source     map[string]string  `json:"source"`
}
