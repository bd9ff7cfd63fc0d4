package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"octolab/internal/apperr"
	"octolab/internal/enum"
	"octolab/internal/logger"
)

const (
	redisOverrideKey   = "octolab:runtime:override"
	redisOverrideChan  = "octolab:runtime:override:changed"
	doctorCacheTTL     = 30 * time.Second
	doctorCacheKeyBase = "octolab:doctor:"
)

// Selector owns the process-wide effective_runtime = override ?? default
// decision and gates selection on the effective runtime's Doctor()
// result, which may be served from Redis for up to doctorCacheTTL.
// It never falls back silently: if the effective runtime's doctor fails,
// Effective returns a PreflightFailed error instead of substituting
// another backend.
type Selector struct {
	defaultRuntime enum.RuntimeType
	redis          *redis.Client

	mu       sync.RWMutex
	override *enum.RuntimeType
}

// NewSelector builds a Selector. redisClient may be nil, in which case
// override persistence and doctor-report caching are both skipped
// in-process only (useful for tests) but the NO FALLBACK rule still holds.
func NewSelector(defaultRuntime enum.RuntimeType, redisClient *redis.Client) *Selector {
	return &Selector{defaultRuntime: defaultRuntime, redis: redisClient}
}

// LoadOverride reads a previously persisted override from Redis, so a
// replica that restarts picks up the operator's last decision instead
// of reverting to the configured default.
func (s *Selector) LoadOverride(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	val, err := s.redis.Get(ctx, redisOverrideKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return apperr.ExternalFailure("runtime.LoadOverride", err)
	}
	rt := enum.RuntimeType(val)
	s.mu.Lock()
	s.override = &rt
	s.mu.Unlock()
	return nil
}

// SetOverride pins the effective runtime, persists it to Redis, and
// publishes a best-effort change notification on redisOverrideChan.
// Nothing in this package subscribes to that channel: another replica
// picks up the override when it calls LoadOverride, as cmd/server does
// at startup.
func (s *Selector) SetOverride(ctx context.Context, rt *enum.RuntimeType) error {
	if rt != nil && !Registered(*rt) {
		return apperr.Validation("runtime.SetOverride", fmt.Errorf("unknown runtime type %q", *rt))
	}
	s.mu.Lock()
	s.override = rt
	s.mu.Unlock()

	if s.redis == nil {
		return nil
	}
	if rt == nil {
		if err := s.redis.Del(ctx, redisOverrideKey).Err(); err != nil {
			return apperr.ExternalFailure("runtime.SetOverride", err)
		}
	} else if err := s.redis.Set(ctx, redisOverrideKey, string(*rt), 0).Err(); err != nil {
		return apperr.ExternalFailure("runtime.SetOverride", err)
	}
	_ = s.redis.Publish(ctx, redisOverrideChan, "changed").Err()
	return nil
}

// Override returns the current operator override, or nil if unset.
func (s *Selector) Override() *enum.RuntimeType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.override
}

// effectiveType computes override ?? default without touching the doctor.
func (s *Selector) effectiveType() enum.RuntimeType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.override != nil {
		return *s.override
	}
	return s.defaultRuntime
}

// Effective returns the Runtime instance that should handle a new lab,
// after confirming its Doctor report is ok. It is the single choke
// point the "NO FALLBACK" rule in spec.md §9 depends on: a failing
// doctor on the effective runtime surfaces as PreflightFailed, it never
// causes this function to try a different runtime instead.
func (s *Selector) Effective(ctx context.Context, cfg map[string]interface{}) (Runtime, DoctorReport, error) {
	t := s.effectiveType()
	rt, err := Create(ctx, t, cfg)
	if err != nil {
		return nil, DoctorReport{}, apperr.Internal("runtime.Effective", err)
	}
	report, err := s.cachedDoctor(ctx, rt)
	if err != nil {
		return nil, DoctorReport{}, apperr.ExternalFailure("runtime.Effective", err)
	}
	if !report.OK() {
		return nil, report, apperr.PreflightFailed("runtime.Effective", fmt.Errorf("doctor failed for runtime %q", t))
	}
	return rt, report, nil
}

// cachedDoctor serves a recent DoctorReport from Redis when available,
// to keep CreateLab from re-running expensive preflight checks on
// every request under load; a cache miss always runs the live check.
func (s *Selector) cachedDoctor(ctx context.Context, rt Runtime) (DoctorReport, error) {
	key := doctorCacheKeyBase + string(rt.Name())
	if s.redis != nil {
		if raw, err := s.redis.Get(ctx, key).Result(); err == nil {
			var cached DoctorReport
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				return cached, nil
			}
		}
	}

	report, err := rt.Doctor(ctx)
	if err != nil {
		return DoctorReport{}, err
	}
	report.CheckedAt = time.Now()

	if s.redis != nil {
		if raw, err := json.Marshal(report); err == nil {
			if err := s.redis.Set(ctx, key, raw, doctorCacheTTL).Err(); err != nil {
				logger.GetLogger(ctx).Warn("failed caching doctor report", zap.Error(err))
			}
		}
	}
	return report, nil
}
