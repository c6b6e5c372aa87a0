package service

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"

	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/metrics"
	"equipment-booking-backend/internal/repository"
	"equipment-booking-backend/internal/utils"
)

// UtilizationWindowDays is the trailing window QuoteBooking measures utilization over.
const UtilizationWindowDays = 30

var ruleReasons = map[string]string{
	"seasonal":      "Seasonal pricing",
	"demand":        "Demand-based pricing",
	"duration":      "Duration-based discount",
	"customer_type": "Customer type pricing",
	"bulk":          "Bulk discount",
	"special":       "Special offer",
}

const defaultRuleReason = "Price adjustment"

type pricingService struct {
	equipmentRepo repository.EquipmentRepository
	ruleRepo      repository.PricingRuleRepository
	ledger        AvailabilityLedger
	clock         domain.Clock
	metrics       *metrics.Metrics
}

func NewPricingService(
	equipmentRepo repository.EquipmentRepository,
	ruleRepo repository.PricingRuleRepository,
	ledger AvailabilityLedger,
	clock domain.Clock,
	m *metrics.Metrics,
) PricingService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &pricingService{
		equipmentRepo: equipmentRepo,
		ruleRepo:      ruleRepo,
		ledger:        ledger,
		clock:         clock,
		metrics:       m,
	}
}

func (s *pricingService) CalculatePrice(ctx context.Context, equipmentID int64, pc domain.PricingContext) (*domain.PriceQuote, error) {
	logger.EnterMethod("pricingService.CalculatePrice", "equipmentID", equipmentID)

	equipment, err := s.equipmentRepo.GetByID(ctx, equipmentID)
	if err != nil {
		logger.ExitMethodWithError("pricingService.CalculatePrice", err, "equipmentID", equipmentID)
		return nil, err
	}
	rules, err := s.ruleRepo.ListByEquipment(ctx, equipmentID, true)
	if err != nil {
		logger.ExitMethodWithError("pricingService.CalculatePrice", err, "equipmentID", equipmentID)
		return nil, err
	}

	quote := EvaluateRules(equipment.BasePrice, rules, pc)

	types := make([]string, 0, len(quote.Adjustments))
	for _, r := range rules {
		for _, a := range quote.Adjustments {
			if a.RuleID == r.ID {
				types = append(types, string(r.AdjustmentType))
			}
		}
	}
	s.metrics.ObserveQuote(types)

	logger.ExitMethod("pricingService.CalculatePrice", "equipmentID", equipmentID,
		"basePrice", quote.BasePrice, "finalPrice", quote.FinalPrice, "applied", quote.AppliedRuleCount)
	return &quote, nil
}

// QuoteBooking prices a prospective booking: the pricing date is the booking
// start, rental days come from its length and utilization from the trailing window.
func (s *pricingService) QuoteBooking(ctx context.Context, equipmentID int64, iv domain.Interval, customerSegment string, quantity int) (*domain.PriceQuote, error) {
	if !iv.Valid() {
		return nil, domain.ErrInvalidInterval
	}
	if quantity <= 0 {
		quantity = 1
	}

	window := utils.TrailingWindow(s.clock.Now(), UtilizationWindowDays)
	utilization, err := s.ledger.Utilization(ctx, equipmentID, window)
	if err != nil {
		return nil, err
	}

	return s.CalculatePrice(ctx, equipmentID, domain.PricingContext{
		Date:            iv.Start,
		Utilization:     utilization,
		RentalDays:      utils.RentalDays(iv),
		Quantity:        quantity,
		CustomerSegment: customerSegment,
	})
}

func (s *pricingService) CreateRule(ctx context.Context, in domain.PricingRuleInput) (*domain.PricingRule, error) {
	logger.EnterMethod("pricingService.CreateRule", "equipmentID", in.EquipmentID, "conditionType", in.ConditionType)

	rule, err := buildRule(in)
	if err != nil {
		logger.ExitMethodWithError("pricingService.CreateRule", err, "equipmentID", in.EquipmentID)
		return nil, err
	}
	if _, err := s.equipmentRepo.GetByID(ctx, in.EquipmentID); err != nil {
		logger.ExitMethodWithError("pricingService.CreateRule", err, "equipmentID", in.EquipmentID)
		return nil, err
	}
	now := s.clock.Now()
	rule.CreatedAt, rule.UpdatedAt = now, now
	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		logger.ExitMethodWithError("pricingService.CreateRule", err, "equipmentID", in.EquipmentID)
		return nil, err
	}

	logger.ExitMethod("pricingService.CreateRule", "ruleID", rule.ID)
	return rule, nil
}

func (s *pricingService) UpdateRule(ctx context.Context, ruleID int64, in domain.PricingRuleInput) (*domain.PricingRule, error) {
	logger.EnterMethod("pricingService.UpdateRule", "ruleID", ruleID)

	existing, err := s.ruleRepo.GetByID(ctx, ruleID)
	if err != nil {
		logger.ExitMethodWithError("pricingService.UpdateRule", err, "ruleID", ruleID)
		return nil, err
	}
	if in.EquipmentID == 0 {
		in.EquipmentID = existing.EquipmentID
	}
	rule, err := buildRule(in)
	if err != nil {
		logger.ExitMethodWithError("pricingService.UpdateRule", err, "ruleID", ruleID)
		return nil, err
	}
	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.clock.Now()
	if err := s.ruleRepo.Update(ctx, rule); err != nil {
		logger.ExitMethodWithError("pricingService.UpdateRule", err, "ruleID", ruleID)
		return nil, err
	}

	logger.ExitMethod("pricingService.UpdateRule", "ruleID", ruleID)
	return rule, nil
}

func (s *pricingService) GetRule(ctx context.Context, ruleID int64) (*domain.PricingRule, error) {
	return s.ruleRepo.GetByID(ctx, ruleID)
}

func (s *pricingService) ListRules(ctx context.Context, equipmentID int64, activeOnly bool) ([]domain.PricingRule, error) {
	return s.ruleRepo.ListByEquipment(ctx, equipmentID, activeOnly)
}

// buildRule validates a rule input and parses its condition payload.
func buildRule(in domain.PricingRuleInput) (*domain.PricingRule, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !in.AdjustmentType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAdjustment, in.AdjustmentType)
	}
	cond, err := domain.ParseCondition(in.ConditionType, in.ConditionValue)
	if err != nil {
		return nil, err
	}
	if _, ok := cond.(domain.UnconditionalCondition); ok {
		logger.Warn("Pricing rule has an unrecognised condition type and will always apply",
			"equipment_id", in.EquipmentID, "condition_type", in.ConditionType)
	}
	return &domain.PricingRule{
		EquipmentID:     in.EquipmentID,
		RuleType:        in.RuleType,
		AdjustmentType:  in.AdjustmentType,
		AdjustmentValue: in.AdjustmentValue,
		Condition:       cond,
		Priority:        in.Priority,
		IsActive:        in.IsActive,
	}, nil
}

// EvaluateRules applies every active rule whose condition matches pc, highest
// priority first and lowest id first among equals. Each adjustment is computed
// against basePrice, and the final price never drops below zero.
func EvaluateRules(basePrice float64, rules []domain.PricingRule, pc domain.PricingContext) domain.PriceQuote {
	applicable := make([]domain.PricingRule, 0, len(rules))
	for _, r := range rules {
		if !r.IsActive || !r.AdjustmentType.Valid() {
			continue
		}
		if r.Condition != nil && !r.Condition.Matches(pc) {
			continue
		}
		applicable = append(applicable, r)
	}
	slices.SortFunc(applicable, func(a, b domain.PricingRule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	quote := domain.PriceQuote{
		BasePrice:   basePrice,
		FinalPrice:  basePrice,
		Adjustments: make([]domain.PriceAdjustment, 0, len(applicable)),
	}
	for _, r := range applicable {
		amount := AdjustmentAmount(r.AdjustmentType, r.AdjustmentValue, basePrice)
		quote.FinalPrice += amount
		quote.Adjustments = append(quote.Adjustments, domain.PriceAdjustment{
			RuleID:      r.ID,
			RuleType:    r.RuleType,
			Amount:      amount,
			Description: DescribeAdjustment(r.RuleType, r.AdjustmentType, r.AdjustmentValue),
		})
	}
	quote.FinalPrice = math.Max(0, quote.FinalPrice)
	quote.AppliedRuleCount = len(quote.Adjustments)
	return quote
}

// AdjustmentAmount is the signed delta a rule contributes to the price.
func AdjustmentAmount(t domain.AdjustmentType, value, basePrice float64) float64 {
	switch t {
	case domain.AdjustmentPercentage:
		return basePrice * value / 100
	case domain.AdjustmentFixed:
		return value
	case domain.AdjustmentMultiplier:
		return basePrice * (value - 1)
	default:
		return 0
	}
}

// DescribeAdjustment renders "<reason>: <effect>", e.g. "Bulk discount: 5% decrease".
func DescribeAdjustment(ruleType string, t domain.AdjustmentType, value float64) string {
	reason, ok := ruleReasons[ruleType]
	if !ok {
		reason = defaultRuleReason
	}

	abs := formatNumber(math.Abs(value))
	var effect string
	switch t {
	case domain.AdjustmentPercentage:
		if value > 0 {
			effect = abs + "% increase"
		} else {
			effect = abs + "% decrease"
		}
	case domain.AdjustmentFixed:
		if value > 0 {
			effect = "$" + abs + " added"
		} else {
			effect = "$" + abs + " subtracted"
		}
	case domain.AdjustmentMultiplier:
		if value > 1 {
			effect = "Multiplied by " + abs
		} else {
			effect = "Divided by " + abs
		}
	default:
		effect = string(t)
	}
	return reason + ": " + effect
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
