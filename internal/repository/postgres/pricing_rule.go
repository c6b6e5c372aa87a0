package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/repository"
)

const ruleColumns = `id, equipment_id, rule_type, adjustment_type, adjustment_value, condition_type, condition_value, priority, is_active, created_at, updated_at`

type pricingRuleRepository struct {
	db DBTX
}

func NewPricingRuleRepository(db DBTX) repository.PricingRuleRepository {
	return &pricingRuleRepository{db: db}
}

func conditionColumns(c domain.Condition) (string, []byte, error) {
	if c == nil {
		return "", nil, errors.New("pricing rule has no condition")
	}
	v := c.Value()
	if v == nil {
		return string(c.Type()), nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("encode condition value: %w", err)
	}
	return string(c.Type()), raw, nil
}

func scanRule(row rowScanner) (*domain.PricingRule, error) {
	var (
		rule          domain.PricingRule
		conditionType string
		raw           []byte
	)
	err := row.Scan(&rule.ID, &rule.EquipmentID, &rule.RuleType, &rule.AdjustmentType, &rule.AdjustmentValue,
		&conditionType, &raw, &rule.Priority, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cond, err := domain.ParseCondition(conditionType, raw)
	if err != nil {
		return nil, fmt.Errorf("pricing rule %d: %w", rule.ID, err)
	}
	rule.Condition = cond
	return &rule, nil
}

func (r *pricingRuleRepository) Create(ctx context.Context, rule *domain.PricingRule) error {
	conditionType, raw, err := conditionColumns(rule.Condition)
	if err != nil {
		return err
	}
	query := `INSERT INTO equipment_pricing_rules (equipment_id, rule_type, adjustment_type, adjustment_value, condition_type, condition_value, priority, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return r.db.QueryRowContext(ctx, query, rule.EquipmentID, rule.RuleType, rule.AdjustmentType, rule.AdjustmentValue,
		conditionType, raw, rule.Priority, rule.IsActive, rule.CreatedAt, rule.UpdatedAt).Scan(&rule.ID)
}

func (r *pricingRuleRepository) GetByID(ctx context.Context, id int64) (*domain.PricingRule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM equipment_pricing_rules WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rule, err
}

func (r *pricingRuleRepository) Update(ctx context.Context, rule *domain.PricingRule) error {
	conditionType, raw, err := conditionColumns(rule.Condition)
	if err != nil {
		return err
	}
	query := `UPDATE equipment_pricing_rules SET rule_type=$1, adjustment_type=$2, adjustment_value=$3, condition_type=$4, condition_value=$5,
	          priority=$6, is_active=$7, updated_at=$8, equipment_id=$9 WHERE id=$10`
	rule.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, query, rule.RuleType, rule.AdjustmentType, rule.AdjustmentValue, conditionType, raw,
		rule.Priority, rule.IsActive, rule.UpdatedAt, rule.EquipmentID, rule.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pricingRuleRepository) ListByEquipment(ctx context.Context, equipmentID int64, activeOnly bool) ([]domain.PricingRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM equipment_pricing_rules WHERE equipment_id = $1 AND ($2::boolean = FALSE OR is_active)
	          ORDER BY priority DESC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, equipmentID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.PricingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}
