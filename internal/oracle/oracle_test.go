package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"rangeScope/internal/dex"
)

type fakeFeeds struct {
	round dex.LatestRound
	err   error
	calls int
}

func (f *fakeFeeds) LatestRound(context.Context, uint64, string) (dex.LatestRound, error) {
	f.calls++
	return f.round, f.err
}

func TestStatic(t *testing.T) {
	o := NewStatic(map[uint64]float64{1: 3500})
	price, err := o.NativePriceInQuote(context.Background(), 1)
	if err != nil || price != 3500 {
		t.Fatalf("price = %v, %v", price, err)
	}
	if _, err := o.NativePriceInQuote(context.Background(), 10); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice, got %v", err)
	}
}

func TestChainlinkReadsAndCaches(t *testing.T) {
	now := time.Unix(1700000000, 0)
	feeds := &fakeFeeds{round: dex.LatestRound{Answer: big.NewInt(350012345678), Decimals: 8, UpdatedAt: now.Add(-time.Minute)}}
	o := NewChainlink(feeds, ChainlinkConfig{
		Feeds:    map[uint64]string{1: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"},
		MaxAge:   time.Hour,
		CacheFor: time.Minute,
		Now:      func() time.Time { return now },
	})

	for i := 0; i < 3; i++ {
		price, err := o.NativePriceInQuote(context.Background(), 1)
		if err != nil {
			t.Fatalf("price: %v", err)
		}
		if diff := price - 3500.12345678; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("price = %v", price)
		}
	}
	if feeds.calls != 1 {
		t.Fatalf("feed calls = %d, want 1", feeds.calls)
	}
}

func TestChainlinkRejectsStaleAnswer(t *testing.T) {
	now := time.Unix(1700000000, 0)
	feeds := &fakeFeeds{round: dex.LatestRound{Answer: big.NewInt(1), UpdatedAt: now.Add(-2 * time.Hour)}}
	o := NewChainlink(feeds, ChainlinkConfig{
		Feeds:  map[uint64]string{1: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"},
		MaxAge: time.Hour,
		Now:    func() time.Time { return now },
	})
	if _, err := o.NativePriceInQuote(context.Background(), 1); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice, got %v", err)
	}
}

func TestChainlinkFallback(t *testing.T) {
	feeds := &fakeFeeds{err: errors.New("execution reverted")}
	o := NewChainlink(feeds, ChainlinkConfig{
		Feeds:    map[uint64]string{1: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"},
		Fallback: NewStatic(map[uint64]float64{1: 3000, 10: 3001}),
	})

	price, err := o.NativePriceInQuote(context.Background(), 1)
	if err != nil || price != 3000 {
		t.Fatalf("price = %v, %v", price, err)
	}
	price, err = o.NativePriceInQuote(context.Background(), 10)
	if err != nil || price != 3001 {
		t.Fatalf("unconfigured feed should use fallback, got %v, %v", price, err)
	}
}

func TestChainlinkNegativeAnswer(t *testing.T) {
	feeds := &fakeFeeds{round: dex.LatestRound{Answer: big.NewInt(-5), Decimals: 8}}
	o := NewChainlink(feeds, ChainlinkConfig{Feeds: map[uint64]string{1: "0x01"}})
	if _, err := o.NativePriceInQuote(context.Background(), 1); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice, got %v", err)
	}
}
