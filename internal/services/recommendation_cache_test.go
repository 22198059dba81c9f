package services

import (
	"testing"
	"time"
)

func TestRecommendationCache_ExpiresAfterTTL(t *testing.T) {
	c := NewRecommendationCache(time.Minute, 10, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	loads := 0
	load := func() []Recommendation {
		loads++
		return []Recommendation{{FragranceID: "x"}}
	}

	c.GetOrLoad("k", load)
	c.GetOrLoad("k", load)
	now = now.Add(2 * time.Minute)
	c.GetOrLoad("k", load)

	if loads != 2 {
		t.Fatalf("loads want=2 got=%d", loads)
	}
}

func TestRecommendationCache_EvictsWhenFull(t *testing.T) {
	c := NewRecommendationCache(time.Minute, 2, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	one := func() []Recommendation { return []Recommendation{{FragranceID: "x"}} }

	c.GetOrLoad("a", one)
	now = now.Add(time.Second)
	c.GetOrLoad("b", one)
	now = now.Add(time.Second)
	c.GetOrLoad("c", one)

	if c.Len() != 2 {
		t.Fatalf("entries want=2 got=%d", c.Len())
	}
	if _, ok := c.get("a"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
}

func TestRecommendationCache_InvalidateSession(t *testing.T) {
	c := NewRecommendationCache(time.Minute, 10, nil)
	one := func() []Recommendation { return []Recommendation{{FragranceID: "x"}} }
	c.GetOrLoad(CacheKey("beginner", "fresh", "tok1"), one)
	c.GetOrLoad(CacheKey("collector", "sophisticated_woody", "tok1"), one)
	c.GetOrLoad(CacheKey("beginner", "fresh", "tok2"), one)

	c.InvalidateSession("tok1")

	if c.Len() != 1 {
		t.Fatalf("entries want=1 got=%d", c.Len())
	}
}

func TestRecommendationCache_ReturnsCopies(t *testing.T) {
	c := NewRecommendationCache(time.Minute, 10, nil)
	got := c.GetOrLoad("k", func() []Recommendation { return []Recommendation{{FragranceID: "x"}} })
	got[0].FragranceID = "mutated"

	again := c.GetOrLoad("k", func() []Recommendation { return nil })
	if again[0].FragranceID != "x" {
		t.Fatalf("cached entry mutated through returned slice: %+v", again)
	}
}

func TestRecommendationCache_InvalidationDuringLoadSkipsStore(t *testing.T) {
	c := NewRecommendationCache(time.Minute, 10, nil)
	key := CacheKey("beginner", "fresh", "tok1")
	loads := 0

	got := c.GetOrLoad(key, func() []Recommendation {
		loads++
		c.InvalidateSession("tok1")
		return []Recommendation{{FragranceID: "stale"}}
	})
	if len(got) != 1 || got[0].FragranceID != "stale" {
		t.Fatalf("caller must still receive the loaded list: %+v", got)
	}
	if c.Len() != 0 {
		t.Fatalf("entries want=0 got=%d", c.Len())
	}

	got = c.GetOrLoad(key, func() []Recommendation {
		loads++
		return []Recommendation{{FragranceID: "fresh"}}
	})
	if loads != 2 || got[0].FragranceID != "fresh" {
		t.Fatalf("want reload with fresh list got loads=%d recs=%+v", loads, got)
	}
	if c.Len() != 1 {
		t.Fatalf("entries want=1 got=%d", c.Len())
	}
}

func TestRecommendationCache_InvalidationOfOtherSessionKeepsLoad(t *testing.T) {
	c := NewRecommendationCache(time.Minute, 10, nil)
	c.GetOrLoad(CacheKey("beginner", "fresh", "tok1"), func() []Recommendation {
		c.InvalidateSession("tok2")
		return []Recommendation{{FragranceID: "x"}}
	})
	if c.Len() != 1 {
		t.Fatalf("entries want=1 got=%d", c.Len())
	}
}
