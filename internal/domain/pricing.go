package domain

import (
	"encoding/json"
	"time"
)

type AdjustmentType string

const (
	AdjustmentPercentage AdjustmentType = "percentage"
	AdjustmentFixed      AdjustmentType = "fixed"
	AdjustmentMultiplier AdjustmentType = "multiplier"
)

func (a AdjustmentType) Valid() bool {
	switch a {
	case AdjustmentPercentage, AdjustmentFixed, AdjustmentMultiplier:
		return true
	}
	return false
}

// PricingRule is a conditional price adjustment attached to one piece of equipment.
// RuleType is a free-text category (seasonal, demand, duration, customer_type, bulk, special, ...).
type PricingRule struct {
	ID              int64          `json:"id"`
	EquipmentID     int64          `json:"equipment_id"`
	RuleType        string         `json:"rule_type"`
	AdjustmentType  AdjustmentType `json:"adjustment_type"`
	AdjustmentValue float64        `json:"adjustment_value"`
	Condition       Condition      `json:"-"`
	Priority        int            `json:"priority"`
	IsActive        bool           `json:"is_active"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// PricingRuleInput is the untyped form a rule arrives in before its condition is parsed.
type PricingRuleInput struct {
	EquipmentID     int64           `json:"equipment_id" validate:"required,gt=0"`
	RuleType        string          `json:"rule_type"`
	AdjustmentType  AdjustmentType  `json:"adjustment_type" validate:"required"`
	AdjustmentValue float64         `json:"adjustment_value"`
	ConditionType   string          `json:"condition_type" validate:"required"`
	ConditionValue  json.RawMessage `json:"condition_value"`
	Priority        int             `json:"priority"`
	IsActive        bool            `json:"is_active"`
}

// PricingContext carries the live facts a rule condition is evaluated against.
type PricingContext struct {
	Date            time.Time `json:"date"`
	Utilization     float64   `json:"utilization"` // percent of the trailing window that is booked
	RentalDays      int       `json:"rental_days"`
	Quantity        int       `json:"quantity"`
	CustomerSegment string    `json:"customer_segment"`
}

type PriceAdjustment struct {
	RuleID      int64   `json:"rule_id"`
	RuleType    string  `json:"rule_type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// PriceQuote is the output of a pricing run. Adjustments are additive deltas, so
// BasePrice + sum(Amount) equals FinalPrice unless the floor at zero applied.
type PriceQuote struct {
	BasePrice        float64           `json:"base_price"`
	FinalPrice       float64           `json:"final_price"`
	Adjustments      []PriceAdjustment `json:"adjustments"`
	AppliedRuleCount int               `json:"applied_rule_count"`
}
