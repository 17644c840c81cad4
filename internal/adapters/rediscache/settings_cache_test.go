package rediscache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ryefield/souk/internal/app/domain"
)

type stubSettingsStore struct {
	getFn     func(ctx context.Context, source domain.Source) (int64, error)
	advanceFn func(ctx context.Context, source domain.Source, newWatermark int64) error
}

func (s *stubSettingsStore) GetWatermark(ctx context.Context, source domain.Source) (int64, error) {
	if s.getFn == nil {
		return 0, errors.New("unexpected GetWatermark call")
	}
	return s.getFn(ctx, source)
}

func (s *stubSettingsStore) AdvanceWatermark(ctx context.Context, source domain.Source, newWatermark int64) error {
	if s.advanceFn == nil {
		return errors.New("unexpected AdvanceWatermark call")
	}
	return s.advanceFn(ctx, source, newWatermark)
}

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestGetWatermarkMissThenHit(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	var calls int
	cache := NewSettingsCache(&stubSettingsStore{
		getFn: func(ctx context.Context, source domain.Source) (int64, error) {
			calls++
			if source != domain.SourceMessaging {
				t.Fatalf("unexpected source: %s", source)
			}
			return 4200, nil
		},
	}, client, time.Minute)

	mark, err := cache.GetWatermark(ctx, domain.SourceMessaging)
	if err != nil {
		t.Fatalf("get watermark: %v", err)
	}
	if mark != 4200 {
		t.Fatalf("watermark = %d, want 4200", mark)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backing store, got %d", calls)
	}
	if ttl := mr.TTL(watermarkCacheKey(domain.SourceMessaging)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.GetWatermark(ctx, domain.SourceMessaging)
	if err != nil {
		t.Fatalf("get cached watermark: %v", err)
	}
	if cached != 4200 {
		t.Fatalf("cached watermark = %d, want 4200", cached)
	}
	if calls != 1 {
		t.Fatalf("expected cached read to avoid backing store, calls=%d", calls)
	}
}

func TestAdvanceWatermarkEvictsCache(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	stored := int64(4100)
	var reads int
	cache := NewSettingsCache(&stubSettingsStore{
		getFn: func(ctx context.Context, source domain.Source) (int64, error) {
			reads++
			return stored, nil
		},
		advanceFn: func(ctx context.Context, source domain.Source, newWatermark int64) error {
			if newWatermark > stored {
				stored = newWatermark
			}
			return nil
		},
	}, client, time.Minute)

	if _, err := cache.GetWatermark(ctx, domain.SourceMail); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	if err := cache.AdvanceWatermark(ctx, domain.SourceMail, 4300); err != nil {
		t.Fatalf("advance watermark: %v", err)
	}

	mark, err := cache.GetWatermark(ctx, domain.SourceMail)
	if err != nil {
		t.Fatalf("get after advance: %v", err)
	}
	if mark != 4300 {
		t.Fatalf("watermark = %d, want 4300", mark)
	}
	if reads != 2 {
		t.Fatalf("expected eviction to force a reread, reads=%d", reads)
	}
}

func TestCorruptCacheEntryFallsBack(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	mr.Set(watermarkCacheKey(domain.SourceWidget), "not a number")

	cache := NewSettingsCache(&stubSettingsStore{
		getFn: func(ctx context.Context, source domain.Source) (int64, error) {
			return 17, nil
		},
	}, client, time.Minute)

	mark, err := cache.GetWatermark(ctx, domain.SourceWidget)
	if err != nil {
		t.Fatalf("get watermark: %v", err)
	}
	if mark != 17 {
		t.Fatalf("watermark = %d, want 17", mark)
	}
	if mr.Exists(watermarkCacheKey(domain.SourceWidget)) {
		got, _ := mr.Get(watermarkCacheKey(domain.SourceWidget))
		if got == "not a number" {
			t.Fatal("corrupt cache entry was not replaced")
		}
	}
}

func TestNilClientDisablesCaching(t *testing.T) {
	ctx := context.Background()

	var calls int
	cache := NewSettingsCache(&stubSettingsStore{
		getFn: func(ctx context.Context, source domain.Source) (int64, error) {
			calls++
			return 9, nil
		},
	}, nil, time.Minute)

	for range 3 {
		if _, err := cache.GetWatermark(ctx, domain.SourceMessaging); err != nil {
			t.Fatalf("get watermark: %v", err)
		}
	}
	if calls != 3 {
		t.Fatalf("expected every read to hit the backing store, calls=%d", calls)
	}
}
