package catalog

import (
	"context"
	"testing"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos/testutil"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
)

func TestFragranceRepo_ListForManualMatchFiltersAndOrders(t *testing.T) {
	db := testutil.DB(t)
	repo := NewFragranceRepo(db, testutil.Logger(t))
	ctx := context.Background()
	testutil.SeedFragrance(t, ctx, db, "f1", "Chanel", "women", 4.2, "floral")
	testutil.SeedFragrance(t, ctx, db, "f2", "Dior", "unisex", 4.7, "citrus")
	testutil.SeedFragrance(t, ctx, db, "f3", "Zara", "men", 4.9, "woody")

	rows, err := repo.ListForManualMatch(dbctx.Context{Ctx: ctx}, ManualMatchFilter{Genders: []string{"women", "unisex"}})
	if err != nil {
		t.Fatalf("ListForManualMatch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("want=2 got=%d", len(rows))
	}
	if rows[0].ID != "f2" || rows[1].ID != "f1" {
		t.Fatalf("want rating order [f2 f1] got [%s %s]", rows[0].ID, rows[1].ID)
	}
	if accords := rows[0].AccordList(); len(accords) != 1 || accords[0] != "citrus" {
		t.Fatalf("unexpected accords %v", accords)
	}
}

func TestFragranceRepo_ListPopularSamplesSkipsUnavailable(t *testing.T) {
	db := testutil.DB(t)
	repo := NewFragranceRepo(db, testutil.Logger(t))
	ctx := context.Background()
	testutil.SeedFragrance(t, ctx, db, "a", "Chanel", "women", 4.1)
	hidden := testutil.SeedFragrance(t, ctx, db, "b", "Dior", "men", 4.9)
	if err := db.Model(hidden).Update("sample_available", false).Error; err != nil {
		t.Fatalf("update: %v", err)
	}

	rows, err := repo.ListPopularSamples(dbctx.Context{Ctx: ctx}, 5)
	if err != nil {
		t.Fatalf("ListPopularSamples: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "a" {
		t.Fatalf("want only sample-available row, got %d rows", len(rows))
	}
}

func TestFragranceRepo_ComputeQuizRecommendations(t *testing.T) {
	db := testutil.DB(t)
	repo := NewFragranceRepo(db, testutil.Logger(t))
	ctx := context.Background()
	testutil.SeedFragrance(t, ctx, db, "fresh-1", "Dior", "unisex", 4.5, "citrus", "aquatic")
	testutil.SeedFragrance(t, ctx, db, "wood-1", "Tom Ford", "men", 4.6, "woody")

	rows, err := repo.ComputeQuizRecommendations(dbctx.Context{Ctx: ctx}, "beginner", map[string]float64{"fresh": 1}, 5)
	if !testutil.IsPostgres() {
		if err == nil {
			t.Fatalf("sqlite has no stored procedures; expected an error")
		}
		return
	}
	if err != nil {
		t.Fatalf("ComputeQuizRecommendations: %v", err)
	}
	if len(rows) != 1 || rows[0].FragranceID != "fresh-1" || rows[0].MatchScore != 1 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}
