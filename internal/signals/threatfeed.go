package signals

import (
	"context"
	"strings"

	"catchphish/internal/feed"
	"catchphish/internal/models"
)

// FeedProvider reports whether a domain, or one of its parents, is listed in
// the synced threat feeds.
type FeedProvider struct {
	store *feed.Store
}

// NewFeedProvider creates a membership provider over store.
func NewFeedProvider(store *feed.Store) *FeedProvider {
	return &FeedProvider{store: store}
}

func (p *FeedProvider) Name() models.SignalName { return models.SignalThreatFeed }

func (p *FeedProvider) Collect(_ context.Context, t Target) models.SignalResult {
	if _, ok := p.store.Synced(); !ok {
		return models.Unavailable(p.Name(), "threat feed not yet synced")
	}
	m, listed := p.store.Check(t.Domain)
	return models.Success(p.Name(), models.FeedPayload{
		Listed:        listed,
		FeedName:      strings.Join(m.Feeds, ", "),
		MatchedDomain: m.Domain,
	})
}
