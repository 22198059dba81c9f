package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos"
	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type fakeFragrances struct {
	mu sync.Mutex

	computeErr   error
	computed     []repos.ComputedRecommendation
	computeCalls int
	// computeBlocks makes the procedure wait for cancellation.
	computeBlocks bool

	manualErr    error
	manual       []*types.Fragrance
	manualFilter repos.ManualMatchFilter

	popularErr error
	popular    []*types.Fragrance
}

func (f *fakeFragrances) ComputeQuizRecommendations(dbc dbctx.Context, level string, dims map[string]float64, max int) ([]repos.ComputedRecommendation, error) {
	f.mu.Lock()
	f.computeCalls++
	blocks := f.computeBlocks
	f.mu.Unlock()
	if blocks {
		<-dbc.Ctx.Done()
		return nil, dbc.Ctx.Err()
	}
	return f.computed, f.computeErr
}

func (f *fakeFragrances) ListForManualMatch(_ dbctx.Context, filter repos.ManualMatchFilter) ([]*types.Fragrance, error) {
	f.mu.Lock()
	f.manualFilter = filter
	f.mu.Unlock()
	return f.manual, f.manualErr
}

func (f *fakeFragrances) ListPopularSamples(_ dbctx.Context, limit int) ([]*types.Fragrance, error) {
	if len(f.popular) > limit {
		return f.popular[:limit], f.popularErr
	}
	return f.popular, f.popularErr
}

func (f *fakeFragrances) Upsert(dbctx.Context, []*types.Fragrance) error { return nil }

func (f *fakeFragrances) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.computeCalls
}

type fakeResponses struct {
	repos.QuizResponseRepo
	rows []*types.QuizResponse
	err  error
}

func (f *fakeResponses) ListBySessionToken(dbctx.Context, string) ([]*types.QuizResponse, error) {
	return f.rows, f.err
}

func fragrance(id, brand string, rating float64, accords ...string) *types.Fragrance {
	raw, _ := json.Marshal(accords)
	return &types.Fragrance{
		ID:              id,
		Name:            "Fragrance " + id,
		BrandName:       brand,
		Gender:          "women",
		Accords:         raw,
		RatingValue:     rating,
		SampleAvailable: true,
		SamplePriceUSD:  4,
	}
}

func response(questionID, answer string) *types.QuizResponse {
	return &types.QuizResponse{ID: uuid.New(), QuestionID: questionID, AnswerValue: answer}
}

type recordedEvent struct {
	name    string
	payload map[string]any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) Emit(_ context.Context, name string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: name, payload: payload})
}

func (r *recordingEmitter) named(name string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}
