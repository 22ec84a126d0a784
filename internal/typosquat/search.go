package typosquat

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"catchphish/internal/models"
	"catchphish/internal/validation"
)

// Resolver reports whether a domain currently resolves in DNS.
type Resolver interface {
	Resolves(ctx context.Context, domain string) bool
}

// DomainSource supplies known domains, such as the current threat feed snapshot.
type DomainSource interface {
	Domains() []string
}

// Searcher ranks confusable domains for an arbitrary input domain by combining
// known feed domains with generated permutations that actually resolve.
type Searcher struct {
	matcher     *Matcher
	resolver    Resolver
	source      DomainSource
	concurrency int
	limit       int
}

// NewSearcher creates a fuzzy searcher. resolver and source may be nil.
func NewSearcher(matcher *Matcher, resolver Resolver, source DomainSource) *Searcher {
	return &Searcher{
		matcher:     matcher,
		resolver:    resolver,
		source:      source,
		concurrency: 16,
		limit:       50,
	}
}

// Search returns up to the configured limit of candidates for domain.
func (s *Searcher) Search(ctx context.Context, domain string) ([]models.TyposquatCandidate, error) {
	target, err := validation.ExtractDomain(domain)
	if err != nil {
		return nil, err
	}

	var known []string
	if s.source != nil {
		known = s.source.Domains()
	}
	results := s.matcher.FindCandidates(target, known)

	if s.resolver != nil {
		generated := s.matcher.FindCandidates(target, Permutations(target))
		live, err := s.resolvable(ctx, generated)
		if err != nil {
			return nil, fmt.Errorf("resolving permutations: %w", err)
		}

		names := make([]string, 0, len(results)+len(live))
		for _, c := range results {
			names = append(names, c.CandidateDomain)
		}
		for _, c := range live {
			names = append(names, c.CandidateDomain)
		}
		results = s.matcher.FindCandidates(target, names)
	}

	if s.limit > 0 && len(results) > s.limit {
		results = results[:s.limit]
	}
	return results, nil
}

func (s *Searcher) resolvable(ctx context.Context, candidates []models.TyposquatCandidate) ([]models.TyposquatCandidate, error) {
	var (
		mu  sync.Mutex
		out []models.TyposquatCandidate
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, c := range candidates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if s.resolver.Resolves(ctx, c.CandidateDomain) {
				mu.Lock()
				out = append(out, c)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
