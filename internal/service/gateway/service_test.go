package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rentalytics/rei-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	items  map[string]model.CacheItem
	getErr error
	putErr error
	puts   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string]model.CacheItem{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (*model.CacheItem, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	item, ok := f.items[key]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (f *fakeCache) Put(_ context.Context, item model.CacheItem, _ time.Duration) error {
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.items[item.Key] = item
	return nil
}

type fakeUsage struct {
	count    int
	reserves int
	resets   int
	err      error
}

func (f *fakeUsage) Reserve(_ context.Context, _ string, ceiling int) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.reserves++
	if f.count >= ceiling {
		return false, nil
	}
	f.count++
	return true, nil
}

func (f *fakeUsage) Current(_ context.Context, apiName string) (*model.APIUsage, error) {
	return &model.APIUsage{APIName: apiName, Count: f.count}, nil
}

func (f *fakeUsage) Reset(_ context.Context, _ string) error {
	f.resets++
	f.count = 0
	return nil
}

type fakeOutbox struct {
	topics []string
}

func (f *fakeOutbox) Insert(_ context.Context, _ *sqlx.Tx, _, _, topic string, _ []byte) error {
	f.topics = append(f.topics, topic)
	return nil
}

type fakeClient struct {
	payload json.RawMessage
	err     error
	calls   int
}

func (f *fakeClient) FetchProperty(_ context.Context, _ string) (json.RawMessage, error) {
	f.calls++
	return f.payload, f.err
}

func (f *fakeClient) FetchRentEstimate(_ context.Context, _, _ string, _, _ float64, _ int) (json.RawMessage, error) {
	f.calls++
	return f.payload, f.err
}

func newService(cache *fakeCache, usage *fakeUsage, outbox *fakeOutbox, client *fakeClient, ceiling int) *Service {
	return New(cache, usage, outbox, client, "rentcast", ceiling, time.Hour)
}

func TestFetchPropertyCacheHitSkipsQuotaAndUpstream(t *testing.T) {
	cache := newFakeCache()
	cache.items["property:123 Main St, Austin, TX, 78701"] = model.CacheItem{
		Key:     "property:123 Main St, Austin, TX, 78701",
		Payload: json.RawMessage(`{"id":"p1"}`),
	}
	usage := &fakeUsage{}
	client := &fakeClient{}

	svc := newService(cache, usage, &fakeOutbox{}, client, 48)

	item, err := svc.FetchProperty(context.Background(), "123 Main St", "Austin", "tx", "78701")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1"}`, string(item.Payload))
	assert.Equal(t, 0, usage.reserves, "hit must not touch the quota")
	assert.Equal(t, 0, client.calls, "hit must not call upstream")
}

func TestFetchPropertyMissReservesFetchesAndCaches(t *testing.T) {
	cache := newFakeCache()
	usage := &fakeUsage{}
	outbox := &fakeOutbox{}
	client := &fakeClient{payload: json.RawMessage(`{"id":"p1","rent":1850}`)}

	svc := newService(cache, usage, outbox, client, 48)

	item, err := svc.FetchProperty(context.Background(), "123 Main St", "Austin", "TX", "78701")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1","rent":1850}`, string(item.Payload))
	assert.Equal(t, 1, usage.count)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 1, cache.puts)
	assert.False(t, item.ExpirationDate.Before(item.Timestamp))
	assert.Equal(t, []string{UsageEventsKafkaTopic}, outbox.topics)

	// second call for the same address is served from cache
	_, err = svc.FetchProperty(context.Background(), "123  Main St", "Austin", "tx", "78701")
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 1, usage.count)
}

func TestFetchPropertyQuotaExhausted(t *testing.T) {
	usage := &fakeUsage{count: 2}
	client := &fakeClient{payload: json.RawMessage(`{}`)}

	svc := newService(newFakeCache(), usage, &fakeOutbox{}, client, 2)

	_, err := svc.FetchProperty(context.Background(), "123 Main St", "Austin", "TX", "78701")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 0, client.calls, "quota rejection must happen before the upstream call")
}

func TestFetchPropertyUpstreamFailureKeepsSlot(t *testing.T) {
	cache := newFakeCache()
	usage := &fakeUsage{}
	client := &fakeClient{err: errors.New("status=500")}

	svc := newService(cache, usage, &fakeOutbox{}, client, 48)

	_, err := svc.FetchProperty(context.Background(), "123 Main St", "Austin", "TX", "78701")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, 1, usage.count, "failed upstream call still consumed the slot")
	assert.Equal(t, 0, cache.puts)
}

func TestFetchPropertyCacheWriteFailureStillReturnsPayload(t *testing.T) {
	cache := newFakeCache()
	cache.putErr = errors.New("redis down")
	client := &fakeClient{payload: json.RawMessage(`{"id":"p1"}`)}

	svc := newService(cache, &fakeUsage{}, &fakeOutbox{}, client, 48)

	item, err := svc.FetchProperty(context.Background(), "123 Main St", "Austin", "TX", "78701")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1"}`, string(item.Payload))
}

func TestFetchPropertyCacheReadFaultPropagates(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	usage := &fakeUsage{}
	client := &fakeClient{payload: json.RawMessage(`{}`)}

	svc := newService(cache, usage, &fakeOutbox{}, client, 48)

	_, err := svc.FetchProperty(context.Background(), "123 Main St", "Austin", "TX", "78701")
	require.Error(t, err)
	assert.Equal(t, 0, usage.reserves)
	assert.Equal(t, 0, client.calls)
}

func TestFetchRentEstimateUsesEstimateKey(t *testing.T) {
	cache := newFakeCache()
	client := &fakeClient{payload: json.RawMessage(`{"rent":2100}`)}

	svc := newService(cache, &fakeUsage{}, &fakeOutbox{}, client, 48)

	item, err := svc.FetchRentEstimate(context.Background(),
		"123 Main St", "Austin", "TX", "78701", "Single Family", 3, 2.5, 1850)
	require.NoError(t, err)
	assert.Equal(t, "rent:123 Main St-Austin-TX-Single Family-3-2.5-1850", item.Key)

	// a different zip hits the same cache entry; zip is not part of the key
	_, err = svc.FetchRentEstimate(context.Background(),
		"123 Main St", "Austin", "TX", "78702", "Single Family", 3, 2.5, 1850)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestResetUsage(t *testing.T) {
	usage := &fakeUsage{count: 30}

	svc := newService(newFakeCache(), usage, &fakeOutbox{}, &fakeClient{}, 48)

	require.NoError(t, svc.ResetUsage(context.Background()))
	assert.Equal(t, 0, usage.count)
	assert.Equal(t, 1, usage.resets)

	info, ceiling, err := svc.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, info.Count)
	assert.Equal(t, 48, ceiling)
}
