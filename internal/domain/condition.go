package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

type ConditionType string

const (
	ConditionDateRange       ConditionType = "date_range"
	ConditionUtilization     ConditionType = "utilization"
	ConditionRentalDays      ConditionType = "rental_days"
	ConditionQuantity        ConditionType = "quantity"
	ConditionCustomerSegment ConditionType = "customer_segment"
)

// Condition is the tagged union behind PricingRule.Condition. Each variant
// carries its own typed payload.
type Condition interface {
	Type() ConditionType
	Matches(pc PricingContext) bool
	// Value returns the payload in the shape it is stored as condition_value.
	Value() any
}

// DateRangeCondition applies when the pricing date falls within [Start, End],
// compared as calendar dates, both ends inclusive.
type DateRangeCondition struct {
	Start time.Time
	End   time.Time
}

func (c DateRangeCondition) Type() ConditionType { return ConditionDateRange }

func (c DateRangeCondition) Matches(pc PricingContext) bool {
	d := calendarDate(pc.Date)
	return !d.Before(calendarDate(c.Start)) && !d.After(calendarDate(c.End))
}

func (c DateRangeCondition) Value() any {
	return map[string]string{
		"start": c.Start.Format(DateLayout),
		"end":   c.End.Format(DateLayout),
	}
}

// NumericRangeCondition covers utilization, rental_days and quantity: the
// matching context field must fall within [Min, Max].
type NumericRangeCondition struct {
	Field ConditionType
	Min   float64
	Max   float64
}

func (c NumericRangeCondition) Type() ConditionType { return c.Field }

func (c NumericRangeCondition) Matches(pc PricingContext) bool {
	var v float64
	switch c.Field {
	case ConditionUtilization:
		v = pc.Utilization
	case ConditionRentalDays:
		v = float64(pc.RentalDays)
	case ConditionQuantity:
		v = float64(pc.Quantity)
	default:
		return false
	}
	return v >= c.Min && v <= c.Max
}

func (c NumericRangeCondition) Value() any {
	return map[string]float64{"min": c.Min, "max": c.Max}
}

type CustomerSegmentCondition struct {
	Segments []string
}

func (c CustomerSegmentCondition) Type() ConditionType { return ConditionCustomerSegment }

func (c CustomerSegmentCondition) Matches(pc PricingContext) bool {
	return slices.Contains(c.Segments, pc.CustomerSegment)
}

func (c CustomerSegmentCondition) Value() any {
	return c.Segments
}

// UnconditionalCondition is the fallback for condition types this engine does
// not know. It always applies and its payload is kept verbatim.
type UnconditionalCondition struct {
	RawType string
	Raw     json.RawMessage
}

func (c UnconditionalCondition) Type() ConditionType { return ConditionType(c.RawType) }

func (c UnconditionalCondition) Matches(PricingContext) bool { return true }

func (c UnconditionalCondition) Value() any {
	if len(c.Raw) == 0 {
		return nil
	}
	return c.Raw
}

// IsKnownConditionType reports whether t has a typed variant.
func IsKnownConditionType(t string) bool {
	switch ConditionType(t) {
	case ConditionDateRange, ConditionUtilization, ConditionRentalDays, ConditionQuantity, ConditionCustomerSegment:
		return true
	}
	return false
}

const DateLayout = "2006-01-02"

var conditionValidator = validator.New()

type dateRangePayload struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type numericRangePayload struct {
	Min *flexNumber `json:"min" validate:"required"`
	Max *flexNumber `json:"max" validate:"required"`
}

type segmentPayload struct {
	Segments []string `validate:"min=1,dive,required"`
}

// ParseCondition builds the typed condition for conditionType from its stored
// payload, failing with InvalidRuleConditionError when the payload does not
// fit the type. Unknown types become UnconditionalCondition.
func ParseCondition(conditionType string, raw json.RawMessage) (Condition, error) {
	invalid := func(detail string) error {
		return &InvalidRuleConditionError{ConditionType: conditionType, Detail: detail}
	}

	switch ConditionType(conditionType) {
	case ConditionDateRange:
		var p dateRangePayload
		if err := strictDecode(raw, &p); err != nil {
			return nil, invalid("condition value must be an object with start and end")
		}
		if err := conditionValidator.Struct(p); err != nil {
			return nil, invalid(describeValidation(err))
		}
		start, err := ParseDate(p.Start)
		if err != nil {
			return nil, invalid("start is not a valid date")
		}
		end, err := ParseDate(p.End)
		if err != nil {
			return nil, invalid("end is not a valid date")
		}
		if start.After(end) {
			return nil, invalid("start must not be after end")
		}
		return DateRangeCondition{Start: start, End: end}, nil

	case ConditionUtilization, ConditionRentalDays, ConditionQuantity:
		var p numericRangePayload
		if err := strictDecode(raw, &p); err != nil {
			return nil, invalid("min and max must be numeric")
		}
		if err := conditionValidator.Struct(p); err != nil {
			return nil, invalid(describeValidation(err))
		}
		if float64(*p.Min) > float64(*p.Max) {
			return nil, invalid("min must not exceed max")
		}
		return NumericRangeCondition{Field: ConditionType(conditionType), Min: float64(*p.Min), Max: float64(*p.Max)}, nil

	case ConditionCustomerSegment:
		var p segmentPayload
		if err := strictDecode(raw, &p.Segments); err != nil {
			return nil, invalid("condition value must be an array of segment labels")
		}
		if err := conditionValidator.Struct(p); err != nil {
			return nil, invalid("segment list must be non-empty and contain no blank labels")
		}
		return CustomerSegmentCondition{Segments: p.Segments}, nil
	}

	return UnconditionalCondition{RawType: conditionType, Raw: raw}, nil
}

// ParseDate accepts yyyy-mm-dd or RFC 3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected yyyy-mm-dd", s)
	}
	return t, nil
}

func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strictDecode(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(raw, dst)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
	return err.Error()
}

// flexNumber accepts both JSON numbers and numeric strings.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if len(s) >= 2 && s[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = unq
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not numeric: %s", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("not finite: %s", s)
	}
	*n = flexNumber(f)
	return nil
}
