package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fixture-edge/internal/domain"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	setErr error
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func encode(value interface{}) []byte {
	switch v := value.(type) {
	case []byte:
		return append([]byte(nil), v...)
	case string:
		return []byte(v)
	default:
		b, _ := json.Marshal(v)
		return b
	}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = encode(value)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = encode(value)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func TestCooldownAcquireOnce(t *testing.T) {
	r := newFakeRedis()
	store := NewCooldownStore(r)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "ev:cooldown:fx1:h2h:home:1", 6*time.Hour)
	if err != nil || !ok {
		t.Fatalf("first acquire should succeed, got %v %v", ok, err)
	}
	ok, err = store.Acquire(ctx, "ev:cooldown:fx1:h2h:home:1", 6*time.Hour)
	if err != nil || ok {
		t.Fatalf("second acquire should be refused, got %v %v", ok, err)
	}
	if r.ttls["ev:cooldown:fx1:h2h:home:1"] != 6*time.Hour {
		t.Fatalf("expected ttl to be set, got %v", r.ttls)
	}
}

func TestCooldownStoreError(t *testing.T) {
	r := newFakeRedis()
	r.setErr = errors.New("connection refused")

	if _, err := NewCooldownStore(r).Acquire(context.Background(), "k", time.Minute); err == nil {
		t.Fatal("expected store error")
	}
}

func TestLookupCacheRoundTrip(t *testing.T) {
	r := newFakeRedis()
	c := NewLookupCache(r, "fixtures")
	ctx := context.Background()

	var id int
	found, err := c.Get(ctx, "team-id:real madrid", &id)
	if err != nil || found {
		t.Fatalf("expected clean miss, got %v %v", found, err)
	}
	if err := c.Set(ctx, "team-id:real madrid", 541, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := r.data["fixtures:team-id:real madrid"]; !ok {
		t.Fatalf("expected namespaced key, got %v", r.data)
	}
	found, err = c.Get(ctx, "team-id:real madrid", &id)
	if err != nil || !found || id != 541 {
		t.Fatalf("expected cached id 541, got %d %v %v", id, found, err)
	}
}

func TestLookupCacheCorruptValue(t *testing.T) {
	r := newFakeRedis()
	r.data["k"] = []byte("{not json")

	var v map[string]int
	if _, err := NewLookupCache(r, "").Get(context.Background(), "k", &v); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSummaryCache(t *testing.T) {
	r := newFakeRedis()
	c := NewSummaryCache(r, time.Hour)
	ctx := context.Background()

	if _, found, err := c.LastSummary(ctx); err != nil || found {
		t.Fatalf("expected no summary yet, got %v %v", found, err)
	}
	in := domain.CycleSummary{ID: "c1", Events: 3, Resolved: 2, Partial: true}
	if err := c.SaveSummary(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, found, err := c.LastSummary(ctx)
	if err != nil || !found || out.ID != "c1" || out.Resolved != 2 || !out.Partial {
		t.Fatalf("unexpected summary %+v %v %v", out, found, err)
	}
}
