package insight

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"interruptd/internal/apperr"
	"interruptd/internal/ledger"
	"interruptd/internal/model"
	"interruptd/pkg/circuitbreaker"
	"interruptd/pkg/config"
	"interruptd/pkg/logger"
	"interruptd/pkg/metrics"
)

// FallbackProvider is reported when a text was produced without a provider.
const FallbackProvider = "fallback"

// MaxWeeksAgo bounds how far back the weekly report looks.
const MaxWeeksAgo = 52

var errEmptyCompletion = errors.New("empty completion")

// Patterns is the read side of the pattern registry.
type Patterns interface {
	Get(ctx context.Context, userID int, id string) (*model.Pattern, error)
	List(ctx context.Context, userID int) ([]model.Pattern, error)
}

// Insight is a generated (or fallback) text.
type Insight struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Cached   bool   `json:"cached"`
	Fallback bool   `json:"fallback"`
}

// PatternWeek is one row of the weekly report.
type PatternWeek struct {
	PatternID     string `json:"patternId"`
	Name          string `json:"name"`
	Color         string `json:"color"`
	Count         int    `json:"count"`
	PreviousCount int    `json:"previousCount"`
}

// WeeklyReport covers one Sunday..Saturday week.
type WeeklyReport struct {
	Start         string        `json:"start"`
	End           string        `json:"end"`
	WeeksAgo      int           `json:"weeksAgo"`
	Patterns      []PatternWeek `json:"patterns"`
	Total         int           `json:"total"`
	PreviousTotal int           `json:"previousTotal"`
	PercentChange float64       `json:"percentChange"`
	Summary       *Insight      `json:"summary,omitempty"`
}

type Service struct {
	patterns Patterns
	gen      Generator
	cache    Cache
	cb       *circuitbreaker.CircuitBreaker
	index    *ledger.Index
	ttl      time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewService wires the insight service. gen and cache may be nil.
func NewService(patterns Patterns, gen Generator, cache Cache, index *ledger.Index, cfg config.InsightConfig, logger *zap.Logger) *Service {
	s := &Service{
		patterns: patterns,
		gen:      gen,
		cache:    cache,
		index:    index,
		ttl:      cfg.CacheTTL,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
	if s.ttl <= 0 {
		s.ttl = 6 * time.Hour
	}
	if s.timeout <= 0 {
		s.timeout = 20 * time.Second
	}
	s.cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
		OnStateChange: func(from, to circuitbreaker.State) {
			metrics.SetCircuitBreakerState("insight", int(to))
			logger.Warn("Insight circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

// Breaker exposes the circuit breaker guarding the provider.
func (s *Service) Breaker() *circuitbreaker.CircuitBreaker { return s.cb }

// Analyze produces the analysis text of one pattern.
func (s *Service) Analyze(ctx context.Context, userID int, patternID string) (*Insight, error) {
	p, err := s.patterns.Get(ctx, userID, patternID)
	if err != nil {
		return nil, err
	}

	today := s.index.TodayOrdinal()
	data := PatternData{
		Name:        p.Name,
		Year:        s.index.Year(),
		ElapsedDays: today,
		Entries:     ledger.UpTo(p.Ledger(), s.index.Year(), today),
	}
	key := PatternKey(p.ID, EntriesFingerprint(data.Entries, p.Name, strconv.Itoa(today)))

	return s.generate(ctx, key, AnalysisPrompt(data), func() string { return AnalysisFallback(data) })
}

// Invalidate drops cached analyses of a pattern.
func (s *Service) Invalidate(ctx context.Context, patternID string) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.InvalidatePattern(ctx, patternID)
}

// WeeklyReport counts deviations per active pattern for the week weeksAgo
// weeks before the current one, optionally with a generated summary.
func (s *Service) WeeklyReport(ctx context.Context, userID, weeksAgo int, withSummary bool) (*WeeklyReport, error) {
	if weeksAgo < 0 || weeksAgo > MaxWeeksAgo {
		return nil, apperr.Invalid("weeksAgo", "must be between 0 and %d", MaxWeeksAgo)
	}

	patterns, err := s.patterns.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := s.index.Today()
	start, end, err := ledger.WeekRange(today, weeksAgo)
	if err != nil {
		return nil, err
	}
	prevStart, prevEnd, err := ledger.WeekRange(today, weeksAgo+1)
	if err != nil {
		return nil, err
	}

	report := &WeeklyReport{Start: start, End: end, WeeksAgo: weeksAgo, Patterns: []PatternWeek{}}
	var week []ledger.DeviationDay
	fp := []string{start}
	for i := range patterns {
		p := &patterns[i]
		if p.Archived {
			continue
		}
		entries := p.Ledger().Entries()
		row := PatternWeek{
			PatternID:     p.ID,
			Name:          p.Name,
			Color:         p.Color,
			Count:         ledger.CountBetween(entries, start, end),
			PreviousCount: ledger.CountBetween(entries, prevStart, prevEnd),
		}
		report.Patterns = append(report.Patterns, row)
		report.Total += row.Count
		report.PreviousTotal += row.PreviousCount

		for _, e := range entries {
			if e.Date >= start && e.Date <= end {
				week = append(week, e)
			}
		}
		fp = append(fp, p.ID, p.Name, strconv.Itoa(row.Count))
	}
	if report.PreviousTotal > 0 {
		change := float64(report.Total-report.PreviousTotal) / float64(report.PreviousTotal) * 100
		report.PercentChange = math.Round(change*10) / 10
	}

	if withSummary {
		data := WeekData{Start: start, End: end, Patterns: report.Patterns, Entries: week}
		key := UserKey("weekly", userID, EntriesFingerprint(week, fp...))
		summary, err := s.generate(ctx, key, WeeklyPrompt(data), func() string { return WeeklyFallback(data) })
		if err != nil {
			return nil, err
		}
		report.Summary = summary
	}
	return report, nil
}

// Coach produces a short reflection over all active patterns.
func (s *Service) Coach(ctx context.Context, userID int) (*Insight, error) {
	patterns, err := s.patterns.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	var active []model.Pattern
	for _, p := range patterns {
		if !p.Archived {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return nil, apperr.Invalid("patterns", "no active patterns")
	}

	year, today := s.index.Year(), s.index.TodayOrdinal()
	rows := make([]CoachData, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range active {
		p := &active[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st := ledger.Compute(p.Ledger(), year, today)
			rows[i] = CoachData{
				Name:         p.Name,
				Deviations:   st.DeviationCount,
				CurrentCycle: st.CurrentCycle,
				LongestCycle: st.LongestCycle,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fp := make([]string, 0, len(rows)*3)
	for _, r := range rows {
		fp = append(fp, r.Name, strconv.Itoa(r.Deviations), strconv.Itoa(r.CurrentCycle))
	}
	key := UserKey("coach", userID, Fingerprint(fp...))
	return s.generate(ctx, key, CoachPrompt(rows), func() string { return CoachFallback(rows) })
}

// generate serves key from cache, or calls the provider through the breaker,
// or falls back to a deterministic text.
func (s *Service) generate(ctx context.Context, key, prompt string, fallback func() string) (*Insight, error) {
	log := logger.WithTrace(ctx, s.logger)

	if s.cache != nil {
		text, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("Insight cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			metrics.IncrementInsightCache("hit")
			return &Insight{Text: text, Provider: s.providerName(), Cached: true}, nil
		default:
			metrics.IncrementInsightCache("miss")
		}
	}

	if s.gen == nil {
		return &Insight{Text: fallback(), Provider: FallbackProvider, Fallback: true}, nil
	}

	var text string
	err := s.cb.Call(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		start := time.Now()
		out, err := s.gen.Generate(callCtx, prompt)
		status := "success"
		if err == nil && out == "" {
			err = errEmptyCompletion
		}
		if err != nil {
			status = "error"
		}
		metrics.RecordInsightCallLatency(s.gen.Name(), status, time.Since(start))
		text = out
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		log.Warn("Insight provider unavailable, serving fallback",
			zap.String("provider", s.gen.Name()),
			zap.String("breaker", s.cb.GetState().String()),
			zap.Error(err),
		)
		return &Insight{Text: fallback(), Provider: FallbackProvider, Fallback: true}, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, text, s.ttl); err != nil {
			log.Warn("Insight cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return &Insight{Text: text, Provider: s.gen.Name()}, nil
}

func (s *Service) providerName() string {
	if s.gen == nil {
		return FallbackProvider
	}
	return s.gen.Name()
}
