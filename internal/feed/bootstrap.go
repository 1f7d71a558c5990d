package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bryan-buckman/podhost/internal/database"
	"github.com/bryan-buckman/podhost/internal/model"
	"golang.org/x/sync/errgroup"
)

// maxBootstrapConcurrency bounds how many channels render at once.
const maxBootstrapConcurrency = 8

// BootstrapResult reports how the startup population went.
type BootstrapResult struct {
	Built  int
	Failed []string // external ids of channels that failed to render
}

// Populate fills the cache with one rendered document per existing channel,
// building channels concurrently. A channel that fails to render is logged
// and skipped; readers see it as a cache miss. The service should only start
// serving once Populate returns.
func Populate(ctx context.Context, db database.Store, cache *Cache, logger *slog.Logger) (BootstrapResult, error) {
	channels, err := db.ListChannels(ctx)
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("list channels: %w", err)
	}

	var (
		mu     sync.Mutex
		result BootstrapResult
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBootstrapConcurrency)
	for _, ch := range channels {
		ch := ch
		g.Go(func() error {
			doc, err := buildDocument(ctx, db, &ch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("bootstrap: channel failed",
					"channel", ch.ExternalID, "title", ch.Title, "error", err)
				result.Failed = append(result.Failed, ch.ExternalID)
				return nil
			}
			cache.Insert(ch.ExternalID, doc)
			result.Built++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	logger.Info("bootstrap: cache populated",
		"channels", len(channels), "built", result.Built, "failed", len(result.Failed))
	return result, nil
}

// buildDocument fetches a channel's episodes and renders its document.
func buildDocument(ctx context.Context, db database.Store, ch *model.Channel) (*model.FeedDocument, error) {
	episodes, err := db.ListEpisodes(ctx, ch.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	body, err := Build(ch, episodes)
	if err != nil {
		return nil, err
	}
	return &model.FeedDocument{
		ChannelExternalID: ch.ExternalID,
		Title:             model.NormalizeTitle(ch.Title),
		XML:               body,
		BuiltAt:           time.Now(),
	}, nil
}
