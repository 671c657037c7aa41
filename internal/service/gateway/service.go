package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rentalytics/rei-gateway/internal/logger"
	"github.com/rentalytics/rei-gateway/internal/metrics"
	"github.com/rentalytics/rei-gateway/internal/model"
	"github.com/rentalytics/rei-gateway/internal/repository"
	"github.com/rentalytics/rei-gateway/internal/upstream"
	"github.com/rentalytics/rei-gateway/internal/util"
	"go.uber.org/zap"
)

const UsageEventsKafkaTopic = "usage.events"

var (
	ErrQuotaExceeded = errors.New("api usage limit exceeded")
	ErrUpstream      = errors.New("upstream fetch failed")
)

// Service is the quota-gated cache gateway in front of the metered upstream.
//
// Control flow per resource key: cache hit returns immediately (no quota, no
// upstream). On a miss the quota slot is reserved atomically before anything
// else; a failed upstream call does not give the slot back, since the call
// was made. Cache entries expire store-side after TTL.
type Service struct {
	cache  repository.CacheRepository
	usage  repository.UsageRepository
	outbox repository.OutboxRepository
	client upstream.Client

	apiName string
	ceiling int
	ttl     time.Duration
}

func New(
	cacheRepo repository.CacheRepository,
	usageRepo repository.UsageRepository,
	outboxRepo repository.OutboxRepository,
	client upstream.Client,
	apiName string,
	ceiling int,
	ttl time.Duration,
) *Service {
	if ceiling <= 0 {
		ceiling = 48
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Service{
		cache:   cacheRepo,
		usage:   usageRepo,
		outbox:  outboxRepo,
		client:  client,
		apiName: apiName,
		ceiling: ceiling,
		ttl:     ttl,
	}
}

// FetchProperty returns the cached or freshly fetched property record for the
// given address.
func (s *Service) FetchProperty(ctx context.Context, street, city, state, zip string) (*model.CacheItem, error) {
	fullAddress := util.FullAddress(street, city, state, zip)

	return s.fetchWithCache(ctx, "property", fullAddress, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.FetchProperty(ctx, fullAddress)
	})
}

// FetchRentEstimate returns the cached or freshly fetched long-term rent
// estimate for the given address and property attributes.
func (s *Service) FetchRentEstimate(ctx context.Context, street, city, state, zip, propertyType string, bedrooms, bathrooms float64, squareFootage int) (*model.CacheItem, error) {
	fullAddress := util.FullAddress(street, city, state, zip)
	key := util.RentEstimateKey(street, city, state, propertyType, bedrooms, bathrooms, squareFootage)

	return s.fetchWithCache(ctx, "rent", key, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.FetchRentEstimate(ctx, fullAddress, propertyType, bedrooms, bathrooms, squareFootage)
	})
}

// ResetUsage zeroes the monthly counter (scheduled trigger).
func (s *Service) ResetUsage(ctx context.Context) error {
	return s.usage.Reset(ctx, s.apiName)
}

// Usage reports the current counter against its ceiling.
func (s *Service) Usage(ctx context.Context) (*model.APIUsage, int, error) {
	usage, err := s.usage.Current(ctx, s.apiName)
	if err != nil {
		return nil, 0, err
	}
	return usage, s.ceiling, nil
}

func (s *Service) fetchWithCache(ctx context.Context, resource, key string, fetch func(context.Context) (json.RawMessage, error)) (*model.CacheItem, error) {
	cacheKey := resource + ":" + key

	item, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if item != nil {
		metrics.CacheRequestsTotal.WithLabelValues(resource, "hit").Inc()
		return item, nil
	}
	metrics.CacheRequestsTotal.WithLabelValues(resource, "miss").Inc()

	ok, err := s.usage.Reserve(ctx, s.apiName, s.ceiling)
	if err != nil {
		return nil, fmt.Errorf("usage reserve: %w", err)
	}
	if !ok {
		metrics.QuotaRejectionsTotal.WithLabelValues(s.apiName).Inc()
		return nil, ErrQuotaExceeded
	}

	payload, err := fetch(ctx)
	if err != nil {
		// The slot stays consumed: the upstream call was made.
		metrics.UpstreamCallsTotal.WithLabelValues(s.apiName, "failed").Inc()
		s.emitUsageEvent(ctx, resource, key, "failed")
		return nil, fmt.Errorf("fetch %s: %w: %w", resource, ErrUpstream, err)
	}
	metrics.UpstreamCallsTotal.WithLabelValues(s.apiName, "ok").Inc()

	now := time.Now()
	item = &model.CacheItem{
		Key:            cacheKey,
		Payload:        payload,
		Timestamp:      now,
		ExpirationDate: now.Add(s.ttl),
	}

	// A cache-write fault must not fail the request; the payload was fetched.
	if err := s.cache.Put(ctx, *item, s.ttl); err != nil {
		logger.Log.Warn("cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}

	s.emitUsageEvent(ctx, resource, key, "ok")

	return item, nil
}

// emitUsageEvent records the metered call in the audit outbox (best-effort).
func (s *Service) emitUsageEvent(ctx context.Context, resource, key, outcome string) {
	ev := model.AuditEvent{
		ID:        util.New(),
		Kind:      model.AuditAPICall,
		Subject:   s.apiName,
		Detail:    fmt.Sprintf(`{"resource":%q,"key":%q,"outcome":%q}`, resource, key, outcome),
		CreatedAt: time.Now(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.outbox.Insert(ctx, nil, "api_call", ev.ID, UsageEventsKafkaTopic, payload); err != nil {
		logger.Log.Warn("outbox insert failed", zap.Error(err))
	}
}
