// Package cache keeps hot read paths of the repositories in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/repository"
)

const DefaultTTL = 5 * time.Minute

// Client is the subset of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisClient builds a client and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

// PricingRules caches ListByEquipment per equipment and drops the entry on
// every write that touches that equipment. Redis failures fall back to the
// wrapped repository.
type PricingRules struct {
	repository.PricingRuleRepository
	client Client
	ttl    time.Duration
}

func NewPricingRules(inner repository.PricingRuleRepository, client Client, ttl time.Duration) *PricingRules {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PricingRules{PricingRuleRepository: inner, client: client, ttl: ttl}
}

func rulesKey(equipmentID int64, activeOnly bool) string {
	return fmt.Sprintf("pricing_rules:%d:%t", equipmentID, activeOnly)
}

// cachedRule is the stored form; Condition itself has no JSON shape.
type cachedRule struct {
	domain.PricingRule
	ConditionType  string          `json:"condition_type"`
	ConditionValue json.RawMessage `json:"condition_value,omitempty"`
}

func (c *PricingRules) ListByEquipment(ctx context.Context, equipmentID int64, activeOnly bool) ([]domain.PricingRule, error) {
	key := rulesKey(equipmentID, activeOnly)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		rules, decodeErr := decodeRules(data)
		if decodeErr == nil {
			return rules, nil
		}
		logger.Warn("Discarding unreadable pricing rule cache entry", "key", key, "error", decodeErr)
	case !errors.Is(err, redis.Nil):
		logger.Warn("Pricing rule cache read failed", "key", key, "error", err)
	}

	rules, err := c.PricingRuleRepository.ListByEquipment(ctx, equipmentID, activeOnly)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeRules(rules)
	if err != nil {
		logger.Warn("Pricing rules not cached", "key", key, "error", err)
		return rules, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		logger.Warn("Pricing rule cache write failed", "key", key, "error", err)
	}
	return rules, nil
}

func (c *PricingRules) Create(ctx context.Context, rule *domain.PricingRule) error {
	if err := c.PricingRuleRepository.Create(ctx, rule); err != nil {
		return err
	}
	c.invalidate(ctx, rule.EquipmentID)
	return nil
}

// Update also invalidates the equipment the rule belonged to before the write.
func (c *PricingRules) Update(ctx context.Context, rule *domain.PricingRule) error {
	ids := []int64{rule.EquipmentID}
	if prev, err := c.PricingRuleRepository.GetByID(ctx, rule.ID); err == nil && prev.EquipmentID != rule.EquipmentID {
		ids = append(ids, prev.EquipmentID)
	}
	if err := c.PricingRuleRepository.Update(ctx, rule); err != nil {
		return err
	}
	c.invalidate(ctx, ids...)
	return nil
}

func (c *PricingRules) invalidate(ctx context.Context, equipmentIDs ...int64) {
	keys := make([]string, 0, 2*len(equipmentIDs))
	for _, id := range equipmentIDs {
		keys = append(keys, rulesKey(id, true), rulesKey(id, false))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.Error("Pricing rule cache invalidation failed", "keys", keys, "error", err)
	}
}

func encodeRules(rules []domain.PricingRule) ([]byte, error) {
	out := make([]cachedRule, 0, len(rules))
	for _, r := range rules {
		cr := cachedRule{PricingRule: r}
		if r.Condition != nil {
			cr.ConditionType = string(r.Condition.Type())
			if v := r.Condition.Value(); v != nil {
				raw, err := json.Marshal(v)
				if err != nil {
					return nil, err
				}
				cr.ConditionValue = raw
			}
		}
		out = append(out, cr)
	}
	return json.Marshal(out)
}

func decodeRules(data []byte) ([]domain.PricingRule, error) {
	var cached []cachedRule
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	rules := make([]domain.PricingRule, 0, len(cached))
	for _, cr := range cached {
		rule := cr.PricingRule
		if cr.ConditionType != "" {
			cond, err := domain.ParseCondition(cr.ConditionType, cr.ConditionValue)
			if err != nil {
				return nil, err
			}
			rule.Condition = cond
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
