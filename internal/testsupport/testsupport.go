// Package testsupport provides in-memory fakes of the external stores for
// package tests.
package testsupport

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/bryan-buckman/podhost/internal/blob"
	"github.com/bryan-buckman/podhost/internal/database"
	"github.com/bryan-buckman/podhost/internal/model"
)

// MemStore is an in-memory database.Store with injectable failures.
type MemStore struct {
	mu       sync.Mutex
	channels map[string]*model.Channel
	episodes map[string][]model.Episode
	nextID   int64

	FailListChannels  error
	FailListEpisodes  error
	FailCreateEpisode error

	// FailEpisodesFor makes ListEpisodes fail for one channel only.
	FailEpisodesFor string
	EpisodesErr     error
}

var _ database.Store = (*MemStore)(nil)

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		channels: make(map[string]*model.Channel),
		episodes: make(map[string][]model.Episode),
	}
}

// Close implements database.Store.
func (s *MemStore) Close() error { return nil }

// DatabaseType implements database.Store.
func (s *MemStore) DatabaseType() string { return "memory" }

// ListChannels returns all channels ordered by title.
func (s *MemStore) ListChannels(ctx context.Context) ([]model.Channel, error) {
	if s.FailListChannels != nil {
		return nil, s.FailListChannels
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Channel
	for _, ch := range s.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// GetChannel returns the channel with the given external id.
func (s *MemStore) GetChannel(ctx context.Context, externalID string) (*model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[externalID]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *ch
	return &copied, nil
}

// GetChannelByTitle matches titles case-insensitively.
func (s *MemStore) GetChannelByTitle(ctx context.Context, title string) (*model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := model.NormalizeTitle(title)
	for _, ch := range s.channels {
		if model.NormalizeTitle(ch.Title) == want {
			copied := *ch
			return &copied, nil
		}
	}
	return nil, database.ErrNotFound
}

// ChannelExists matches by external id or title.
func (s *MemStore) ChannelExists(ctx context.Context, titleOrID string) (bool, error) {
	if _, err := s.GetChannel(ctx, titleOrID); err == nil {
		return true, nil
	}
	if _, err := s.GetChannelByTitle(ctx, titleOrID); err == nil {
		return true, nil
	}
	return false, nil
}

// CreateChannel inserts a channel.
func (s *MemStore) CreateChannel(ctx context.Context, ch *model.Channel) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[ch.ExternalID]; ok {
		return 0, database.ErrChannelExists
	}
	s.nextID++
	copied := *ch
	copied.ID = s.nextID
	s.channels[ch.ExternalID] = &copied
	return copied.ID, nil
}

// ListEpisodes returns episodes newest publish date first.
func (s *MemStore) ListEpisodes(ctx context.Context, channelExternalID string) ([]model.Episode, error) {
	if s.FailListEpisodes != nil {
		return nil, s.FailListEpisodes
	}
	if s.FailEpisodesFor == channelExternalID && s.EpisodesErr != nil {
		return nil, s.EpisodesErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	eps := append([]model.Episode(nil), s.episodes[channelExternalID]...)
	sort.SliceStable(eps, func(i, j int) bool {
		if !eps[i].PubDate.Equal(eps[j].PubDate) {
			return eps[i].PubDate.After(eps[j].PubDate)
		}
		return eps[i].Sequence > eps[j].Sequence
	})
	return eps, nil
}

// CreateEpisode inserts an episode.
func (s *MemStore) CreateEpisode(ctx context.Context, ep *model.Episode) error {
	if s.FailCreateEpisode != nil {
		return s.FailCreateEpisode
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[ep.ChannelExternalID] = append(s.episodes[ep.ChannelExternalID], *ep)
	return nil
}

// NextSequence returns one past the channel's highest sequence.
func (s *MemStore) NextSequence(ctx context.Context, channelExternalID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for _, ep := range s.episodes[channelExternalID] {
		if ep.Sequence > max {
			max = ep.Sequence
		}
	}
	return max + 1, nil
}

// EpisodeCount reports how many episodes a channel has.
func (s *MemStore) EpisodeCount(channelExternalID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.episodes[channelExternalID])
}

// MemBlob is an in-memory blob.Store with injectable failures.
type MemBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string

	FailPut    error
	FailDelete error
}

var _ blob.Store = (*MemBlob)(nil)

// NewMemBlob creates an empty blob store.
func NewMemBlob() *MemBlob {
	return &MemBlob{objects: make(map[string][]byte)}
}

// Put stores the blob bytes.
func (b *MemBlob) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if b.FailPut != nil {
		return b.FailPut
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = buf.Bytes()
	return nil
}

// Delete removes a blob, recording the key.
func (b *MemBlob) Delete(ctx context.Context, key string) error {
	if b.FailDelete != nil {
		return b.FailDelete
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

// ACL always reports public-read for stored blobs.
func (b *MemBlob) ACL(ctx context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[key]; !ok {
		return "", blob.ErrNotFound
	}
	return "public-read", nil
}

// URL returns a stable public URL for a key.
func (b *MemBlob) URL(key string) string {
	return "https://cdn.example.com/" + key
}

// Has reports whether a blob exists.
func (b *MemBlob) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// Deleted returns the keys deleted so far.
func (b *MemBlob) Deleted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

// Keys returns the stored keys.
func (b *MemBlob) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
