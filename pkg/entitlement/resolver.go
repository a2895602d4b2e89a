package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"craftai/pkg/domain"
)

const defaultKeyPrefix = "craftai:entitlement"

// Resolver reads and charges per-user entitlement state.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (domain.EntitlementSnapshot, error)
	IncrementFreeUsage(ctx context.Context, userID string) error
}

// RedisResolver keeps plan tier and free-usage counters in Redis. The
// increment is a plain INCR so concurrent requests from one user can never
// lose an update.
type RedisResolver struct {
	client *redis.Client
	prefix string
}

// NewRedisResolver connects to Redis and verifies the connection.
func NewRedisResolver(addr, password, prefix string) (*RedisResolver, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("entitlement redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping entitlement redis: %w", err)
	}
	return &RedisResolver{client: client, prefix: prefix}, nil
}

func (r *RedisResolver) planKey(userID string) string {
	return r.prefix + ":plan:" + userID
}

func (r *RedisResolver) usageKey(userID string) string {
	return r.prefix + ":usage:" + userID
}

// Resolve returns the current snapshot. Users without a stored plan are on
// the free tier with zero usage.
func (r *RedisResolver) Resolve(ctx context.Context, userID string) (domain.EntitlementSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.EntitlementSnapshot{}, errors.New("user id required")
	}
	pipe := r.client.Pipeline()
	planCmd := pipe.Get(ctx, r.planKey(userID))
	usageCmd := pipe.Get(ctx, r.usageKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.EntitlementSnapshot{}, fmt.Errorf("resolve entitlement: %w", err)
	}

	snapshot := domain.EntitlementSnapshot{Plan: domain.TierFree}
	if plan, err := planCmd.Result(); err == nil {
		if domain.Tier(plan) == domain.TierPremium {
			snapshot.Plan = domain.TierPremium
		}
	} else if !errors.Is(err, redis.Nil) {
		return domain.EntitlementSnapshot{}, fmt.Errorf("read plan: %w", err)
	}
	if raw, err := usageCmd.Result(); err == nil {
		usage, convErr := strconv.Atoi(raw)
		if convErr != nil || usage < 0 {
			return domain.EntitlementSnapshot{}, fmt.Errorf("corrupt usage counter for %s: %q", userID, raw)
		}
		snapshot.FreeUsage = usage
	} else if !errors.Is(err, redis.Nil) {
		return domain.EntitlementSnapshot{}, fmt.Errorf("read usage: %w", err)
	}
	return snapshot, nil
}

// IncrementFreeUsage charges one free generation. Called at most once per
// admitted request, after the ledger append has succeeded.
func (r *RedisResolver) IncrementFreeUsage(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id required")
	}
	if err := r.client.Incr(ctx, r.usageKey(userID)).Err(); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// SetPlan stores the user's tier. Used by billing-webhook glue and tests;
// the mediation flow itself never writes the plan.
func (r *RedisResolver) SetPlan(ctx context.Context, userID string, tier domain.Tier) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id required")
	}
	if tier != domain.TierFree && tier != domain.TierPremium {
		return fmt.Errorf("unknown tier: %q", tier)
	}
	if err := r.client.Set(ctx, r.planKey(userID), string(tier), 0).Err(); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}
