package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"interruptd/internal/apperr"
	"interruptd/internal/ledger"
	"interruptd/internal/model"
	"interruptd/pkg/circuitbreaker"
	"interruptd/pkg/config"
	"interruptd/pkg/util"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	text    string
	err     error
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	return g.text, g.err
}

type memCache struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemCache() *memCache { return &memCache{items: map[string]string{}} }

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *memCache) InvalidatePattern(_ context.Context, patternID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(patternKeyPattern(patternID), "*")
	n := 0
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
			n++
		}
	}
	return n, nil
}

type fakePatterns []model.Pattern

func (f fakePatterns) Get(_ context.Context, userID int, id string) (*model.Pattern, error) {
	for i := range f {
		if f[i].ID == id && f[i].UserID == userID {
			return &f[i], nil
		}
	}
	return nil, apperr.NotFound("pattern", id)
}

func (f fakePatterns) List(_ context.Context, userID int) ([]model.Pattern, error) {
	var out []model.Pattern
	for _, p := range f {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func strptr(s string) *string { return &s }

func days(dates ...string) []ledger.DeviationDay {
	out := make([]ledger.DeviationDay, 0, len(dates))
	for _, d := range dates {
		out = append(out, ledger.DeviationDay{Date: d})
	}
	return out
}

// 2025-03-12 is a Wednesday; its week runs 03-09..03-15.
func testIndex() *ledger.Index {
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	return ledger.NewIndex(2025, 0, time.UTC, func() time.Time { return now })
}

func testPatterns() fakePatterns {
	return fakePatterns{
		{
			ID: "p-a", UserID: 1, Name: "Doomscrolling", Color: "rose",
			DefaultedDays: []ledger.DeviationDay{
				{Date: "2025-03-03", Reason: strptr("tired")},
				{Date: "2025-03-10", Reason: strptr("tired")},
				{Date: "2025-03-11"},
			},
		},
		{ID: "p-b", UserID: 1, Name: "Snacking", Color: "amber", DefaultedDays: days("2025-03-09")},
		{ID: "p-c", UserID: 1, Name: "Old", Color: "sky", Archived: true, DefaultedDays: days("2025-03-10")},
		{ID: "p-x", UserID: 2, Name: "Other user", Color: "violet"},
	}
}

func newTestService(gen Generator, cache Cache) *Service {
	return NewService(testPatterns(), gen, cache, testIndex(), config.InsightConfig{}, zap.NewNop())
}

func TestAnalyze_CachesGeneratedText(t *testing.T) {
	gen := &fakeGenerator{text: "📊 insight"}
	svc := newTestService(gen, newMemCache())

	first, err := svc.Analyze(context.Background(), 1, "p-a")
	require.NoError(t, err)
	assert.Equal(t, &Insight{Text: "📊 insight", Provider: "fake"}, first)

	second, err := svc.Analyze(context.Background(), 1, "p-a")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "📊 insight", second.Text)
	assert.Equal(t, 1, gen.calls)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], `"Doomscrolling"`)
	assert.Contains(t, gen.prompts[0], "Days deviated from the norm: 3")
	assert.Contains(t, gen.prompts[0], `"tired" (2)`)
}

func TestAnalyze_NotOwned(t *testing.T) {
	svc := newTestService(nil, nil)
	_, err := svc.Analyze(context.Background(), 1, "p-x")
	var nf *apperr.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestAnalyze_FallbackWithoutProvider(t *testing.T) {
	svc := newTestService(nil, newMemCache())

	got, err := svc.Analyze(context.Background(), 1, "p-a")
	require.NoError(t, err)
	assert.True(t, got.Fallback)
	assert.Equal(t, FallbackProvider, got.Provider)
	assert.Contains(t, got.Text, "3 deviation days out of 71 days tracked")
	assert.Contains(t, got.Text, "Most common reason: tired (2)")
}

func TestAnalyze_ProviderFailureOpensBreaker(t *testing.T) {
	gen := &fakeGenerator{err: util.ErrProviderUnavailable}
	cache := newMemCache()
	svc := newTestService(gen, cache)

	for i := 0; i < 5; i++ {
		got, err := svc.Analyze(context.Background(), 1, "p-b")
		require.NoError(t, err)
		assert.True(t, got.Fallback)
	}

	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, circuitbreaker.StateOpen, svc.Breaker().GetState())
	assert.Empty(t, cache.items)
}

func TestAnalyze_EmptyCompletionFallsBack(t *testing.T) {
	svc := newTestService(&fakeGenerator{}, nil)

	got, err := svc.Analyze(context.Background(), 1, "p-b")
	require.NoError(t, err)
	assert.True(t, got.Fallback)
}

func TestInvalidate(t *testing.T) {
	cache := newMemCache()
	svc := newTestService(&fakeGenerator{text: "x"}, cache)

	_, err := svc.Analyze(context.Background(), 1, "p-a")
	require.NoError(t, err)
	_, err = svc.Analyze(context.Background(), 1, "p-b")
	require.NoError(t, err)

	n, err := svc.Invalidate(context.Background(), "p-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, cache.items, 1)
}

func TestWeeklyReport(t *testing.T) {
	svc := newTestService(nil, nil)

	report, err := svc.WeeklyReport(context.Background(), 1, 0, false)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-09", report.Start)
	assert.Equal(t, "2025-03-15", report.End)
	assert.Equal(t, []PatternWeek{
		{PatternID: "p-a", Name: "Doomscrolling", Color: "rose", Count: 2, PreviousCount: 1},
		{PatternID: "p-b", Name: "Snacking", Color: "amber", Count: 1, PreviousCount: 0},
	}, report.Patterns)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.PreviousTotal)
	assert.Equal(t, 200.0, report.PercentChange)
	assert.Nil(t, report.Summary)
}

func TestWeeklyReport_PreviousWeekWithSummary(t *testing.T) {
	gen := &fakeGenerator{text: "📅 quiet week"}
	svc := newTestService(gen, newMemCache())

	report, err := svc.WeeklyReport(context.Background(), 1, 1, true)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02", report.Start)
	assert.Equal(t, 1, report.Total)
	require.NotNil(t, report.Summary)
	assert.Equal(t, "📅 quiet week", report.Summary.Text)
	assert.Contains(t, gen.prompts[0], "2025-03-02 to 2025-03-08")
}

func TestWeeklyReport_RejectsWeeksAgo(t *testing.T) {
	svc := newTestService(nil, nil)
	for _, w := range []int{-1, MaxWeeksAgo + 1} {
		_, err := svc.WeeklyReport(context.Background(), 1, w, false)
		var verr *apperr.ValidationError
		assert.True(t, errors.As(err, &verr), w)
	}
}

func TestCoach(t *testing.T) {
	gen := &fakeGenerator{text: "What cue came first?"}
	svc := newTestService(gen, nil)

	got, err := svc.Coach(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "What cue came first?", got.Text)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Doomscrolling: 3 deviations")
	assert.Contains(t, gen.prompts[0], "Snacking: 1 deviations")
	assert.NotContains(t, gen.prompts[0], "Old")
}

func TestCoach_NoActivePatterns(t *testing.T) {
	svc := newTestService(nil, nil)
	_, err := svc.Coach(context.Background(), 3)
	var verr *apperr.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestFingerprint(t *testing.T) {
	a := EntriesFingerprint(days("2025-01-01", "2025-01-02"), "7")
	b := EntriesFingerprint(days("2025-01-01", "2025-01-02"), "8")
	c := EntriesFingerprint([]ledger.DeviationDay{{Date: "2025-01-01", Reason: strptr("x")}, {Date: "2025-01-02"}}, "7")

	assert.Equal(t, a, EntriesFingerprint(days("2025-01-01", "2025-01-02"), "7"))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "insight:pattern:p1:"+a, PatternKey("p1", a))
}

func TestOpenRouter_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenRouter(config.InsightConfig{BaseURL: srv.URL + "/", APIKey: "key"})
	text, err := c.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, defaultOpenRouterModel, got.Model)
	assert.Equal(t, maxOutputTokens, got.MaxTokens)
	assert.Equal(t, []chatMessage{{Role: "user", Content: "prompt"}}, got.Messages)
}

func TestOpenRouter_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOpenRouter(config.InsightConfig{BaseURL: srv.URL, APIKey: "key"})
	_, err := c.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, util.ErrProviderUnavailable)

	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)
}

func TestNewGenerator(t *testing.T) {
	gen, err := NewGenerator(context.Background(), config.InsightConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, gen)

	_, err = NewGenerator(context.Background(), config.InsightConfig{Provider: "openrouter"})
	assert.Error(t, err)

	gen, err = NewGenerator(context.Background(), config.InsightConfig{Provider: "openrouter", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openrouter", gen.Name())
}
