package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryan-buckman/podhost/internal/feed"
	"github.com/bryan-buckman/podhost/internal/model"
	"github.com/bryan-buckman/podhost/internal/testsupport"
	"github.com/mmcdole/gofeed"
)

type staticTokens struct{ valid string }

func (s staticTokens) IsValid(token string) bool { return token == s.valid }

type fixture struct {
	store *testsupport.MemStore
	blobs *testsupport.MemBlob
	cache *feed.Cache
	orch  *Orchestrator
	logs  *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var logs bytes.Buffer
	f := &fixture{
		store: testsupport.NewMemStore(),
		blobs: testsupport.NewMemBlob(),
		cache: feed.NewCache(),
		logs:  &logs,
	}
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	f.orch = New(f.store, f.blobs, f.cache, staticTokens{valid: "good-token"}, logger)
	return f
}

func uploadRequest(channelID string) *Request {
	return &Request{
		Token: "good-token",
		Channel: model.Channel{
			ExternalID:     channelID,
			Title:          "Show " + channelID,
			Description:    "A test channel",
			ManagingEditor: "editor@example.com",
			Link:           "https://example.com/" + channelID,
			Language:       "en-us",
		},
		Episode: model.Episode{
			ChannelExternalID: channelID,
			Title:             "Fresh Episode",
			Description:       "New material",
			PubDate:           time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Audio:       strings.NewReader("mp3 bytes"),
		AudioLength: 9,
	}
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var upErr *Error
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *upload.Error, got %v", err)
	}
	return upErr.Kind
}

func TestUploadHappyPath(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.orch.Do(context.Background(), uploadRequest("ch-1"))
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if receipt.Token != "good-token" {
		t.Errorf("receipt should echo the session token, got %q", receipt.Token)
	}
	if receipt.Key != receipt.EpisodeID+".mp3" {
		t.Errorf("key %q does not follow {episode-id}.mp3", receipt.Key)
	}
	if !f.blobs.Has(receipt.Key) {
		t.Error("audio blob not stored")
	}

	// Channel was created, episode inserted, cache slot upserted.
	if f.store.EpisodeCount("ch-1") != 1 {
		t.Errorf("expected 1 episode, got %d", f.store.EpisodeCount("ch-1"))
	}
	doc, err := f.cache.GetByID("ch-1")
	if err != nil {
		t.Fatalf("cache slot missing after upload: %v", err)
	}
	parsed, err := gofeed.NewParser().ParseString(string(doc.XML))
	if err != nil {
		t.Fatalf("cached document does not parse: %v", err)
	}
	if len(parsed.Items) != 1 || parsed.Items[0].GUID != receipt.EpisodeID {
		t.Errorf("cached feed does not reflect the upload: %+v", parsed.Items)
	}

	// The new channel is resolvable by title immediately.
	if _, err := f.cache.GetByTitle("show-ch-1"); err != nil {
		t.Errorf("new channel not resolvable by title: %v", err)
	}
}

func TestUploadRejectsInvalidToken(t *testing.T) {
	f := newFixture(t)
	req := uploadRequest("ch-1")
	req.Token = "bad-token"

	_, err := f.orch.Do(context.Background(), req)
	if kindOf(t, err) != KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(f.blobs.Keys()) != 0 {
		t.Error("nothing should be written for a rejected upload")
	}
}

func TestUploadRejectsChannelMismatch(t *testing.T) {
	f := newFixture(t)

	// The ownership check must reject a mismatched channel id every time.
	for i := 0; i < 50; i++ {
		req := uploadRequest("ch-1")
		req.Episode.ChannelExternalID = "ch-other"
		_, err := f.orch.Do(context.Background(), req)
		if kindOf(t, err) != KindValidation {
			t.Fatalf("trial %d: expected validation error, got %v", i, err)
		}
	}
	if len(f.blobs.Keys()) != 0 || f.store.EpisodeCount("ch-1") != 0 {
		t.Error("rejected uploads must not touch the stores")
	}
}

func TestUploadBlobFailureAbortsCleanly(t *testing.T) {
	f := newFixture(t)
	f.blobs.FailPut = errors.New("object store down")

	_, err := f.orch.Do(context.Background(), uploadRequest("ch-1"))
	if kindOf(t, err) != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	// No metadata or cache mutation happened, so no compensation either.
	if f.store.EpisodeCount("ch-1") != 0 {
		t.Error("no episode should be inserted")
	}
	if len(f.blobs.Deleted()) != 0 {
		t.Error("no compensation should run when the blob write itself failed")
	}
	if _, err := f.cache.GetByID("ch-1"); !errors.Is(err, feed.ErrNotFound) {
		t.Error("cache must be untouched")
	}
}

func TestUploadMetadataFailureDeletesBlob(t *testing.T) {
	f := newFixture(t)
	f.store.FailCreateEpisode = errors.New("insert blew up")

	_, err := f.orch.Do(context.Background(), uploadRequest("ch-1"))
	if kindOf(t, err) != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}

	deleted := f.blobs.Deleted()
	if len(deleted) != 1 || !strings.HasSuffix(deleted[0], ".mp3") {
		t.Fatalf("expected one compensating delete, got %v", deleted)
	}
	if len(f.blobs.Keys()) != 0 {
		t.Error("blob should be gone after compensation")
	}
	if _, err := f.cache.GetByID("ch-1"); !errors.Is(err, feed.ErrNotFound) {
		t.Error("feed must be unchanged after a failed upload")
	}
}

func TestUploadCompensationFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.store.FailCreateEpisode = errors.New("insert blew up")
	f.blobs.FailDelete = errors.New("delete also blew up")

	_, err := f.orch.Do(context.Background(), uploadRequest("ch-1"))
	if kindOf(t, err) != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !strings.Contains(f.logs.String(), "compensating delete failed") {
		t.Error("failed compensation must be logged, not swallowed")
	}
}

func TestUploadFromStagedFile(t *testing.T) {
	f := newFixture(t)
	staged := filepath.Join(t.TempDir(), "episode.mp3")
	if err := os.WriteFile(staged, []byte("staged audio bytes"), 0o644); err != nil {
		t.Fatalf("write staged file: %v", err)
	}

	req := uploadRequest("ch-1")
	req.Audio = nil
	req.AudioLength = 0
	req.StagedPath = staged

	receipt, err := f.orch.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if !f.blobs.Has(receipt.Key) {
		t.Fatal("staged audio blob not stored")
	}

	// Byte length comes from the file size.
	eps, err := f.store.ListEpisodes(context.Background(), "ch-1")
	if err != nil {
		t.Fatalf("ListEpisodes failed: %v", err)
	}
	if len(eps) != 1 || eps[0].EnclosureLength != int64(len("staged audio bytes")) {
		t.Errorf("enclosure length not taken from staged file: %+v", eps)
	}
}

func TestUploadRequiresAudio(t *testing.T) {
	f := newFixture(t)
	req := uploadRequest("ch-1")
	req.Audio = nil
	req.AudioLength = 0

	_, err := f.orch.Do(context.Background(), req)
	if kindOf(t, err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUploadsToExistingChannelAppend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := uploadRequest("ch-1")
		req.Episode.Title = fmt.Sprintf("Episode %d", i)
		req.Episode.PubDate = time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC)
		req.Audio = strings.NewReader("mp3 bytes")
		if _, err := f.orch.Do(ctx, req); err != nil {
			t.Fatalf("upload %d failed: %v", i, err)
		}
	}

	if f.store.EpisodeCount("ch-1") != 3 {
		t.Fatalf("expected 3 episodes, got %d", f.store.EpisodeCount("ch-1"))
	}
	doc, err := f.cache.GetByID("ch-1")
	if err != nil {
		t.Fatalf("cache slot missing: %v", err)
	}
	parsed, err := gofeed.NewParser().ParseString(string(doc.XML))
	if err != nil {
		t.Fatalf("cached document does not parse: %v", err)
	}
	if len(parsed.Items) != 3 {
		t.Fatalf("cached feed should list all 3 episodes, got %d", len(parsed.Items))
	}
	// Newest first.
	if parsed.Items[0].Title != "Episode 2" {
		t.Errorf("expected newest episode first, got %q", parsed.Items[0].Title)
	}
	// Sequence numbers advanced monotonically.
	eps, _ := f.store.ListEpisodes(ctx, "ch-1")
	seen := map[int64]bool{}
	for _, ep := range eps {
		seen[ep.Sequence] = true
	}
	for want := int64(1); want <= 3; want++ {
		if !seen[want] {
			t.Errorf("missing sequence %d", want)
		}
	}
}

func TestUploadByTitleLocksResolvedChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.orch.Do(ctx, uploadRequest("ch-1")); err != nil {
		t.Fatalf("seed upload failed: %v", err)
	}

	// Address ch-1 by title under a different declared id while ch-1's lock
	// is held. The write must wait on the resolved channel's lock.
	unlock := f.orch.locks.acquire("ch-1")
	done := make(chan error, 1)
	go func() {
		req := uploadRequest("ch-z")
		req.Channel.Title = "Show ch-1"
		_, err := f.orch.Do(ctx, req)
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("upload completed while the resolved channel's lock was held (err=%v)", err)
	case <-time.After(100 * time.Millisecond):
	}

	unlock()
	if err := <-done; err != nil {
		t.Fatalf("upload failed after lock release: %v", err)
	}
	if got := f.store.EpisodeCount("ch-1"); got != 2 {
		t.Errorf("expected both episodes on ch-1, got %d", got)
	}
	if got := f.store.EpisodeCount("ch-z"); got != 0 {
		t.Errorf("no episodes should land under the declared id, got %d", got)
	}
}

func TestConcurrentUploadsToDistinctChannels(t *testing.T) {
	f := newFixture(t)
	const n = 16

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := uploadRequest(fmt.Sprintf("ch-%d", i))
			req.Audio = strings.NewReader("mp3 bytes")
			_, errs[i] = f.orch.Do(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("upload %d failed: %v", i, err)
		}
	}
	if f.cache.Len() != n {
		t.Fatalf("expected %d cache entries, got %d", n, f.cache.Len())
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("ch-%d", i)
		if f.store.EpisodeCount(id) != 1 {
			t.Errorf("channel %s: expected 1 episode, got %d", id, f.store.EpisodeCount(id))
		}
		if _, err := f.cache.GetByID(id); err != nil {
			t.Errorf("channel %s missing from cache: %v", id, err)
		}
	}
}

func TestConcurrentUploadsToSameChannelConverge(t *testing.T) {
	f := newFixture(t)
	const m = 12

	var wg sync.WaitGroup
	errs := make([]error, m)
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := uploadRequest("ch-1")
			req.Episode.Title = fmt.Sprintf("Episode %d", i)
			req.Audio = strings.NewReader("mp3 bytes")
			_, errs[i] = f.orch.Do(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("upload %d failed: %v", i, err)
		}
	}
	if f.store.EpisodeCount("ch-1") != m {
		t.Fatalf("expected %d committed episodes, got %d", m, f.store.EpisodeCount("ch-1"))
	}

	// The cache reflects the state after the last committed write: all m
	// episodes are present in the final document.
	doc, err := f.cache.GetByID("ch-1")
	if err != nil {
		t.Fatalf("cache slot missing: %v", err)
	}
	parsed, err := gofeed.NewParser().ParseString(string(doc.XML))
	if err != nil {
		t.Fatalf("cached document does not parse: %v", err)
	}
	if len(parsed.Items) != m {
		t.Errorf("cache lost updates: final feed has %d of %d episodes", len(parsed.Items), m)
	}
}
