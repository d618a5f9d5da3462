// Package discovery asks a generative text service for new feeds and keeps the ones that probe
// healthy.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/ports"
)

// AgentDeps wires the agent's collaborators.
type AgentDeps struct {
	Generator      ports.TextGenerator
	Registry       ports.RegistryReader
	Prober         ports.Prober
	Limiter        ports.Limiter
	Profiles       func(domain.Category) domain.StyleProfile
	FetchFrequency time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// Agent discovers and validates candidate sources for a category.
type Agent struct {
	generator ports.TextGenerator
	registry  ports.RegistryReader
	prober    ports.Prober
	limiter   ports.Limiter
	profiles  func(domain.Category) domain.StyleProfile
	frequency time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.Discoverer = (*Agent)(nil)

// NewAgent constructs an agent.
func NewAgent(deps AgentDeps) *Agent {
	a := &Agent{
		generator: deps.Generator,
		registry:  deps.Registry,
		prober:    deps.Prober,
		limiter:   deps.Limiter,
		profiles:  deps.Profiles,
		frequency: deps.FetchFrequency,
		logger:    deps.Logger,
		now:       deps.Now,
	}
	if a.profiles == nil {
		a.profiles = func(c domain.Category) domain.StyleProfile {
			return domain.StyleProfile{Category: c, Description: string(c)}
		}
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Discover returns up to count freshly validated sources. Generator failures and unusable
// answers yield an empty result.
func (a *Agent) Discover(ctx context.Context, category domain.Category, count int) []domain.Source {
	if count <= 0 || a.generator == nil || a.prober == nil {
		return nil
	}

	answer, err := a.generator.Generate(ctx, buildPrompt(a.profiles(category), count))
	if err != nil {
		a.logger.Warn("discovery generator failed", "category", category, "error", err)
		return nil
	}

	candidates := usable(parseCandidates(answer))
	if len(candidates) == 0 {
		a.logger.Warn("discovery answer had no usable candidates", "category", category)
		return nil
	}

	taken, candidates := a.excludeRegistered(ctx, category, candidates)
	if len(candidates) == 0 {
		a.logger.Info("every suggested feed is already registered", "category", category)
		return nil
	}

	var out []domain.Source
	for _, c := range candidates {
		if len(out) >= count {
			break
		}
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				a.logger.Warn("discovery interrupted", "category", category, "error", err)
				break
			}
		}

		src := a.toSource(category, c, taken)
		verdict := a.prober.Probe(ctx, src)
		if !verdict.Healthy() {
			a.logger.Info("discovered candidate rejected",
				"category", category, "url", c.URL, "status", verdict.Status, "items", verdict.ItemCount)
			continue
		}

		taken[src.ID] = true
		out = append(out, src)
		a.logger.Info("discovered candidate validated", "category", category, "source", src.ID, "items", verdict.ItemCount)
	}

	a.logger.Info("discovery finished",
		"category", category, "requested", count, "suggested", len(candidates), "validated", len(out))
	return out
}

// excludeRegistered returns the ids already in use and the candidates whose URL is not yet
// registered. Without a readable registry every candidate is kept and ids start empty.
func (a *Agent) excludeRegistered(ctx context.Context, category domain.Category, candidates []candidate) (map[string]bool, []candidate) {
	taken := make(map[string]bool)
	if a.registry == nil {
		return taken, candidates
	}
	snapshot, err := a.registry.Snapshot(ctx)
	if err != nil {
		a.logger.Warn("discovery could not read the registry", "category", category, "error", err)
		return taken, candidates
	}

	for _, src := range snapshot.Sources {
		taken[src.ID] = true
	}
	out := candidates[:0]
	for _, c := range candidates {
		if existing, ok := snapshot.FindURL(c.URL); ok {
			a.logger.Info("suggested feed already registered", "category", category, "url", c.URL, "source", existing.ID)
			continue
		}
		out = append(out, c)
	}
	return taken, out
}

func (a *Agent) toSource(category domain.Category, c candidate, taken map[string]bool) domain.Source {
	host := ""
	if u, err := url.Parse(c.URL); err == nil {
		host = strings.TrimPrefix(u.Hostname(), "www.")
	}
	name := c.Name
	if name == "" {
		name = host
	}

	base := domain.Slug(string(category), name)
	if base == domain.Slug(string(category)) {
		base = domain.Slug(string(category), host)
	}
	id := base
	for n := 2; taken[id]; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}

	src := domain.Source{
		ID:             id,
		Name:           name,
		URL:            c.URL,
		Category:       category,
		Kind:           domain.KindFeed,
		Active:         true,
		FetchFrequency: a.frequency,
		Origin:         domain.OriginDiscovery,
		AddedAt:        a.now().UTC(),
	}
	if c.Description != "" {
		src.Metadata = map[string]string{"description": c.Description}
	}
	return src
}

// usable drops candidates with invalid URLs and repeated URLs, keeping the generator's order.
func usable(candidates []candidate) []candidate {
	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if domain.ValidateURL(c.URL) != nil {
			continue
		}
		key := domain.NormalizeURL(c.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func buildPrompt(profile domain.StyleProfile, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest exactly %d RSS or Atom feed URLs for the %q category", count, profile.Category)
	if profile.Description != "" {
		fmt.Fprintf(&b, " (%s)", profile.Description)
	}
	if profile.Audience != "" {
		fmt.Fprintf(&b, ", aimed at %s", profile.Audience)
	}
	b.WriteString(". Only include feeds that are publicly reachable and updated at least weekly.")
	b.WriteString(` Reply with a JSON array only: [{"name": "...", "url": "...", "description": "..."}].`)
	return b.String()
}
