package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/pkg/redis"
)

type fakeSink struct {
	values map[string]string
}

func newFakeSink() *fakeSink { return &fakeSink{values: make(map[string]string)} }

func (f *fakeSink) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", errNotFound
	}
	return v, nil
}
func (f *fakeSink) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.values[key] = value.(string)
	return nil
}
func (f *fakeSink) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}
func (f *fakeSink) Exists(ctx context.Context, keys ...string) (bool, error) {
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			return true, nil
		}
	}
	return false, nil
}
func (f *fakeSink) Incr(ctx context.Context, key string) (int64, error)      { panic("not used") }
func (f *fakeSink) HGet(ctx context.Context, key, field string) (string, error) { panic("not used") }
func (f *fakeSink) HSet(ctx context.Context, key string, values ...interface{}) error {
	panic("not used")
}
func (f *fakeSink) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	panic("not used")
}
func (f *fakeSink) HDel(ctx context.Context, key string, fields ...string) error { panic("not used") }
func (f *fakeSink) Expire(ctx context.Context, key string, expiration time.Duration) error {
	panic("not used")
}
func (f *fakeSink) Pipeline() redis.Pipeline { panic("not used") }
func (f *fakeSink) Close() error             { return nil }
func (f *fakeSink) Ping(ctx context.Context) error { return nil }

type errNotFoundType struct{}

func (errNotFoundType) Error() string { return "redis: nil" }

var errNotFound = errNotFoundType{}

type fakeStrategyStore struct {
	strategies map[string]domain.ActiveStrategy
	ledgers    map[string]domain.DailyExecutionLedger
}

func (s *fakeStrategyStore) Snapshot() (map[string]domain.ActiveStrategy, map[string]domain.DailyExecutionLedger) {
	return s.strategies, s.ledgers
}
func (s *fakeStrategyStore) Restore(strategies map[string]domain.ActiveStrategy, ledgers map[string]domain.DailyExecutionLedger) {
	s.strategies = strategies
	s.ledgers = ledgers
}

type fakePortfolioStore struct {
	portfolios map[string]domain.UserPortfolio
}

func (s *fakePortfolioStore) Snapshot() map[string]domain.UserPortfolio { return s.portfolios }
func (s *fakePortfolioStore) Restore(portfolios map[string]domain.UserPortfolio) {
	s.portfolios = portfolios
}

type fakeAlertStore struct {
	alerts map[string]domain.Alert
}

func (s *fakeAlertStore) Snapshot() map[string]domain.Alert { return s.alerts }
func (s *fakeAlertStore) Restore(alerts map[string]domain.Alert) { s.alerts = alerts }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestSaveThenLoadRoundTripsAllAggregates(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sink := newFakeSink()

	savingStrategies := &fakeStrategyStore{
		strategies: map[string]domain.ActiveStrategy{"s1": {ID: "s1", UserID: "u1"}},
		ledgers:    map[string]domain.DailyExecutionLedger{"u1": {UserID: "u1"}},
	}
	savingPortfolios := &fakePortfolioStore{portfolios: map[string]domain.UserPortfolio{"u1": {UserID: "u1"}}}
	savingAlerts := &fakeAlertStore{alerts: map[string]domain.Alert{"a1": {ID: "a1", UserID: "u1"}}}

	store := NewStore(zap.NewNop(), sink, fixedClock{now: now}, time.Minute, savingStrategies, savingPortfolios, savingAlerts)
	require.NoError(t, store.Save(context.Background()))

	loadingStrategies := &fakeStrategyStore{}
	loadingPortfolios := &fakePortfolioStore{}
	loadingAlerts := &fakeAlertStore{}
	loader := NewStore(zap.NewNop(), sink, fixedClock{now: now}, time.Minute, loadingStrategies, loadingPortfolios, loadingAlerts)

	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, savingStrategies.strategies, loadingStrategies.strategies)
	assert.Equal(t, savingStrategies.ledgers, loadingStrategies.ledgers)
	assert.Equal(t, savingPortfolios.portfolios, loadingPortfolios.portfolios)
	assert.Equal(t, savingAlerts.alerts, loadingAlerts.alerts)
}

func TestLoadWithNoPriorSnapshotIsNotAnError(t *testing.T) {
	sink := newFakeSink()
	strategies := &fakeStrategyStore{}
	portfolios := &fakePortfolioStore{}
	alerts := &fakeAlertStore{}
	store := NewStore(zap.NewNop(), sink, fixedClock{now: time.Now()}, time.Minute, strategies, portfolios, alerts)

	err := store.Load(context.Background())

	assert.NoError(t, err)
}

func TestLoadRejectsSnapshotFromNewerSchemaVersion(t *testing.T) {
	sink := newFakeSink()
	future := Snapshot{SchemaVersion: schemaVersion + 1, SavedAt: time.Now()}
	payload, err := json.Marshal(future)
	require.NoError(t, err)
	sink.values[snapshotKey] = string(payload)

	store := NewStore(zap.NewNop(), sink, fixedClock{now: time.Now()}, time.Minute, &fakeStrategyStore{}, &fakePortfolioStore{}, &fakeAlertStore{})

	err = store.Load(context.Background())

	assert.Error(t, err)
}

func TestCaptureStampsSchemaVersionAndSavedAt(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	snap := Capture(&fakeStrategyStore{strategies: map[string]domain.ActiveStrategy{}, ledgers: map[string]domain.DailyExecutionLedger{}},
		&fakePortfolioStore{portfolios: map[string]domain.UserPortfolio{}},
		&fakeAlertStore{alerts: map[string]domain.Alert{}}, now)

	assert.Equal(t, schemaVersion, snap.SchemaVersion)
	assert.Equal(t, now, snap.SavedAt)
}
