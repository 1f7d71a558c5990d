package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/bryan-buckman/podhost/internal/testsupport"
	"github.com/mmcdole/gofeed"
)

func seedStore(t *testing.T, store *testsupport.MemStore, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("ch-%d", i)
		ch := testChannel()
		ch.ExternalID = id
		ch.Title = fmt.Sprintf("Show %d", i)
		if _, err := store.CreateChannel(ctx, ch); err != nil {
			t.Fatalf("CreateChannel failed: %v", err)
		}
		ep := testEpisode(fmt.Sprintf("ep-%d", i), 1, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
		ep.ChannelExternalID = id
		if err := store.CreateEpisode(ctx, &ep); err != nil {
			t.Fatalf("CreateEpisode failed: %v", err)
		}
	}
}

func TestPopulateBuildsEveryChannel(t *testing.T) {
	store := testsupport.NewMemStore()
	seedStore(t, store, 20)
	cache := NewCache()

	result, err := Populate(context.Background(), store, cache, slog.Default())
	if err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	if result.Built != 20 || len(result.Failed) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if cache.Len() != 20 {
		t.Fatalf("expected 20 cached documents, got %d", cache.Len())
	}

	// Every cached document parses as a well-formed feed.
	parser := gofeed.NewParser()
	for i := 0; i < 20; i++ {
		docu, err := cache.GetByID(fmt.Sprintf("ch-%d", i))
		if err != nil {
			t.Fatalf("channel ch-%d missing from cache: %v", i, err)
		}
		if _, err := parser.ParseString(string(docu.XML)); err != nil {
			t.Errorf("document for ch-%d does not parse: %v", i, err)
		}
	}
}

func TestPopulateIsolatesChannelFailures(t *testing.T) {
	store := testsupport.NewMemStore()
	seedStore(t, store, 5)
	store.FailEpisodesFor = "ch-2"
	store.EpisodesErr = errors.New("episodes table on fire")
	cache := NewCache()

	result, err := Populate(context.Background(), store, cache, slog.Default())
	if err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	if result.Built != 4 {
		t.Errorf("expected 4 built, got %d", result.Built)
	}
	if len(result.Failed) != 1 || result.Failed[0] != "ch-2" {
		t.Errorf("expected ch-2 to fail, got %v", result.Failed)
	}

	// The failed channel is a plain cache miss afterwards.
	if _, err := cache.GetByID("ch-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for failed channel, got %v", err)
	}
	if cache.Len() != 4 {
		t.Errorf("expected 4 cached documents, got %d", cache.Len())
	}
}

func TestPopulateFailsWhenChannelListUnavailable(t *testing.T) {
	store := testsupport.NewMemStore()
	store.FailListChannels = errors.New("connection refused")

	if _, err := Populate(context.Background(), store, NewCache(), slog.Default()); err == nil {
		t.Fatal("expected error when channels cannot be listed")
	}
}

func TestPopulateEmptyStoreReachesReady(t *testing.T) {
	cache := NewCache()
	result, err := Populate(context.Background(), testsupport.NewMemStore(), cache, slog.Default())
	if err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	if result.Built != 0 || cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %+v len=%d", result, cache.Len())
	}
}
