// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/anikrm/mitra/internal/metrics"
	"github.com/anikrm/mitra/internal/personality"
	"github.com/anikrm/mitra/internal/ratelimit"
)

// fakeProvider serves canned candidates per endpoint and counts calls.
type fakeProvider struct {
	mu       sync.Mutex
	calls    map[string]int
	similar  []Candidate
	genre    map[string][]Candidate
	releases []Candidate
	popular  []Candidate

	failSimilar  bool
	failAll      bool
	failuresLeft int // transient failures before success, all endpoints
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: make(map[string]int), genre: make(map[string][]Candidate)}
}

func (p *fakeProvider) record(endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[endpoint]++
	if p.failAll {
		return errors.New("provider outage")
	}
	if p.failuresLeft > 0 {
		p.failuresLeft--
		return errors.New("transient provider error")
	}
	return nil
}

func (p *fakeProvider) count(endpoint string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[endpoint]
}

func (p *fakeProvider) FetchSimilar(_ context.Context, _ []string, _ int) ([]Candidate, error) {
	if err := p.record("similar"); err != nil {
		return nil, err
	}
	if p.failSimilar {
		return nil, errors.New("similar endpoint down")
	}
	return p.similar, nil
}

func (p *fakeProvider) SearchGenre(_ context.Context, genre string, _ int) ([]Candidate, error) {
	if err := p.record("genre:" + genre); err != nil {
		return nil, err
	}
	return p.genre[genre], nil
}

func (p *fakeProvider) NewReleases(_ context.Context, _ int) ([]Candidate, error) {
	if err := p.record("releases"); err != nil {
		return nil, err
	}
	return p.releases, nil
}

func (p *fakeProvider) Popular(_ context.Context, _ int) ([]Candidate, error) {
	if err := p.record("popular"); err != nil {
		return nil, err
	}
	return p.popular, nil
}

func makeCandidates(prefix string, n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{ID: fmt.Sprintf("%s-%d", prefix, i), Artist: prefix}
	}
	return out
}

func openBudget() *ratelimit.ProviderBudget {
	return ratelimit.NewProviderBudget(ratelimit.ProviderConfig{
		Endpoints: map[string]ratelimit.EndpointBudget{
			ratelimit.EndpointSimilar:     {PerSecond: 1000, Burst: 1000},
			ratelimit.EndpointGenreSearch: {PerSecond: 1000, Burst: 1000},
			ratelimit.EndpointNewReleases: {PerSecond: 1000, Burst: 1000},
			ratelimit.EndpointPopular:     {PerSecond: 1000, Burst: 1000},
		},
	})
}

func jazzTarget() personality.TargetVector {
	return personality.TargetVector{GenreAffinity: map[string]float64{"jazz": 0.3}}
}

func TestGenerateDedupes(t *testing.T) {
	p := newFakeProvider()
	p.similar = []Candidate{{ID: "dup", Artist: "a"}, {ID: "s1", Artist: "a"}}
	p.releases = []Candidate{{ID: "dup", Artist: "a"}, {ID: "r1", Artist: "b"}}

	g := NewGenerator(p, openBudget(), GeneratorConfig{})
	pool := g.Generate(context.Background(), "u1",
		[]HistoryEntry{{ID: "h1"}}, personality.TargetVector{},
		StageWeights{HistoryWeight: 0.4, PersonalityWeight: 0.6})

	seen := make(map[string]int)
	for _, c := range pool {
		seen[c.ID]++
	}
	if seen["dup"] != 1 {
		t.Errorf("duplicate item appeared %d times, want 1", seen["dup"])
	}
}

func TestGenerateWeek1SkipsSimilar(t *testing.T) {
	p := newFakeProvider()
	p.popular = makeCandidates("pop", 10)
	p.releases = makeCandidates("rel", 5)

	g := NewGenerator(p, openBudget(), GeneratorConfig{})
	pool := g.Generate(context.Background(), "u1",
		[]HistoryEntry{{ID: "h1"}}, personality.TargetVector{},
		WeightsFor(2)) // week_1: history weight 0

	if p.count("similar") != 0 {
		t.Error("week_1 request hit the similar endpoint")
	}
	if p.count("popular") == 0 {
		t.Error("week_1 request skipped the popularity fallback")
	}
	if len(pool) != 15 {
		t.Errorf("pool size = %d, want 15", len(pool))
	}
}

func TestGenerateGenreFanout(t *testing.T) {
	p := newFakeProvider()
	p.genre["jazz"] = makeCandidates("j", 3)

	g := NewGenerator(p, openBudget(), GeneratorConfig{})
	g.Generate(context.Background(), "u1", nil, jazzTarget(),
		WeightsFor(90))

	if p.count("genre:jazz") == 0 {
		t.Error("top affinity genre was not searched")
	}
}

func TestGenerateRetriesTransientFailure(t *testing.T) {
	p := newFakeProvider()
	p.failuresLeft = 1 // first call fails, retry succeeds
	p.releases = makeCandidates("rel", 4)

	g := NewGenerator(p, openBudget(), GeneratorConfig{})
	pool := g.Generate(context.Background(), "u1", nil, personality.TargetVector{},
		StageWeights{PersonalityWeight: 1})

	found := false
	for _, c := range pool {
		if c.Source == SourceNewRelease {
			found = true
		}
	}
	if !found {
		t.Error("transient failure was not retried")
	}
}

func TestGenerateBudgetExhaustedSkips(t *testing.T) {
	p := newFakeProvider()
	p.releases = makeCandidates("rel", 4)
	p.popular = makeCandidates("pop", 4)

	// Zero-ish budget for new releases only.
	budget := ratelimit.NewProviderBudget(ratelimit.ProviderConfig{
		Endpoints: map[string]ratelimit.EndpointBudget{
			ratelimit.EndpointNewReleases: {PerSecond: 0.0001, Burst: 1},
			ratelimit.EndpointPopular:     {PerSecond: 1000, Burst: 1000},
			ratelimit.EndpointGenreSearch: {PerSecond: 1000, Burst: 1000},
			ratelimit.EndpointSimilar:     {PerSecond: 1000, Burst: 1000},
		},
	})
	budget.Allow(ratelimit.EndpointNewReleases) // drain the single token

	g := NewGenerator(p, budget, GeneratorConfig{})
	pool := g.Generate(context.Background(), "u1", nil, personality.TargetVector{},
		StageWeights{PersonalityWeight: 0.8, PopularWeight: 0.2})

	if p.count("releases") != 0 {
		t.Error("exhausted budget did not skip the sub-source")
	}
	// The request still proceeds with the remaining sources.
	if len(pool) == 0 {
		t.Error("pool empty despite healthy popular source")
	}
}

func TestBudgetSkipCountedOncePerSource(t *testing.T) {
	p := newFakeProvider()
	p.popular = makeCandidates("pop", 4)

	budget := ratelimit.NewProviderBudget(ratelimit.ProviderConfig{
		Endpoints: map[string]ratelimit.EndpointBudget{
			ratelimit.EndpointNewReleases: {PerSecond: 0.0001, Burst: 1},
			ratelimit.EndpointPopular:     {PerSecond: 1000, Burst: 1000},
			ratelimit.EndpointGenreSearch: {PerSecond: 1000, Burst: 1000},
			ratelimit.EndpointSimilar:     {PerSecond: 1000, Burst: 1000},
		},
	})
	budget.Allow(ratelimit.EndpointNewReleases) // drain the single token

	// The counter is labeled by source tag, and only the fan-out
	// increments it. The endpoint-name series must stay flat.
	bySource := metrics.ProviderBudgetSkips.WithLabelValues(string(SourceNewRelease))
	byEndpoint := metrics.ProviderBudgetSkips.WithLabelValues(ratelimit.EndpointNewReleases)
	sourceBefore := testutil.ToFloat64(bySource)
	endpointBefore := testutil.ToFloat64(byEndpoint)

	g := NewGenerator(p, budget, GeneratorConfig{})
	g.Generate(context.Background(), "u1", nil, personality.TargetVector{},
		StageWeights{PersonalityWeight: 0.8, PopularWeight: 0.2})

	if got := testutil.ToFloat64(bySource) - sourceBefore; got != 1 {
		t.Errorf("skip count for source %q grew by %v, want 1", SourceNewRelease, got)
	}
	if got := testutil.ToFloat64(byEndpoint) - endpointBefore; got != 0 {
		t.Errorf("skip count under endpoint label %q grew by %v, want 0", ratelimit.EndpointNewReleases, got)
	}
}

func TestGenerateTotalFailureReturnsEmpty(t *testing.T) {
	p := newFakeProvider()
	p.failAll = true

	g := NewGenerator(p, openBudget(), GeneratorConfig{})
	pool := g.Generate(context.Background(), "u1",
		[]HistoryEntry{{ID: "h1"}}, jazzTarget(),
		WeightsFor(90))

	if len(pool) != 0 {
		t.Errorf("pool = %d candidates from a fully failed provider, want 0", len(pool))
	}
}

func TestGeneratePopularFallbackWhenShort(t *testing.T) {
	p := newFakeProvider()
	p.releases = makeCandidates("rel", 3) // far below target/2
	p.popular = makeCandidates("pop", 20)

	g := NewGenerator(p, openBudget(), GeneratorConfig{Target: 200})
	pool := g.Generate(context.Background(), "u1", nil, personality.TargetVector{},
		WeightsFor(10)) // week_2_4: popular weight 0

	if p.count("popular") == 0 {
		t.Error("short pool did not trigger the popularity fallback")
	}
	if len(pool) != 23 {
		t.Errorf("pool size = %d, want 23", len(pool))
	}
}
