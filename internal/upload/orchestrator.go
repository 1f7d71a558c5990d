// Package upload executes the multi-step episode upload: object write,
// metadata write, feed rebuild, with a compensating blob delete when the
// metadata write fails.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bryan-buckman/podhost/internal/blob"
	"github.com/bryan-buckman/podhost/internal/database"
	"github.com/bryan-buckman/podhost/internal/feed"
	"github.com/bryan-buckman/podhost/internal/model"
	"github.com/google/uuid"
)

// DefaultContentType is used when a request does not declare the audio MIME
// type.
const DefaultContentType = "audio/mpeg"

// TokenValidator reports whether a session token is active.
type TokenValidator interface {
	IsValid(token string) bool
}

// Request describes a single episode upload. Audio arrives either as a
// stream with a declared length or as a pre-staged temporary file whose size
// is read from disk.
type Request struct {
	Token string

	// Channel carries the metadata used to create the channel when it does
	// not exist yet. ExternalID is required.
	Channel model.Channel

	// Episode carries the episode metadata. Its ChannelExternalID must equal
	// Channel.ExternalID; enclosure and sequence fields are filled in here.
	Episode model.Episode

	// Audio and AudioLength describe a streamed upload.
	Audio       io.Reader
	AudioLength int64

	// StagedPath points at a temporary file holding the audio; used instead
	// of Audio when set.
	StagedPath string

	ContentType string
}

// Receipt is returned for a committed upload.
type Receipt struct {
	EpisodeID string `json:"episode_id"`
	Key       string `json:"key"`
	Token     string `json:"token"`
}

// Orchestrator runs uploads against the injected stores and cache.
type Orchestrator struct {
	db     database.Store
	blobs  blob.Store
	cache  *feed.Cache
	tokens TokenValidator
	logger *slog.Logger
	locks  *channelLocks
}

// New creates an orchestrator.
func New(db database.Store, blobs blob.Store, cache *feed.Cache, tokens TokenValidator, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		db:     db,
		blobs:  blobs,
		cache:  cache,
		tokens: tokens,
		logger: logger,
		locks:  newChannelLocks(),
	}
}

// Do validates and executes one upload. Failure before the blob write aborts
// cleanly; a metadata failure after the blob write triggers a best-effort
// delete of the blob, and that delete's own failure is logged, never
// swallowed. The cache entry is only replaced after the metadata commit.
func (o *Orchestrator) Do(ctx context.Context, req *Request) (*Receipt, error) {
	if !o.tokens.IsValid(req.Token) {
		return nil, wrapErr(KindUnauthorized, "validate", errors.New("invalid session token"))
	}
	if req.Channel.ExternalID == "" {
		return nil, wrapErr(KindValidation, "validate", errors.New("missing channel external id"))
	}
	if req.Episode.ChannelExternalID != req.Channel.ExternalID {
		return nil, wrapErr(KindValidation, "validate",
			fmt.Errorf("episode channel id %q does not match channel %q",
				req.Episode.ChannelExternalID, req.Channel.ExternalID))
	}

	episodeID := uuid.NewString()
	key := episodeID + ".mp3"
	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	audio, size, err := o.resolveAudio(req)
	if err != nil {
		return nil, wrapErr(KindValidation, "resolve audio", err)
	}
	defer audio.Close()

	if err := o.blobs.Put(ctx, key, audio, size, contentType); err != nil {
		// Nothing has been committed yet; no compensation needed.
		return nil, wrapErr(KindUpstream, "put blob", err)
	}

	// The metadata write and the rebuild-and-replace must be serialized per
	// channel so the cache converges to the most recently committed write.
	ch, unlock, err := o.lockChannel(ctx, &req.Channel)
	if err != nil {
		o.compensate(ctx, key)
		return nil, wrapErr(KindUpstream, "ensure channel", err)
	}
	defer unlock()

	ep := req.Episode
	ep.ID = episodeID
	ep.ChannelExternalID = ch.ExternalID
	ep.EnclosureURL = o.blobs.URL(key)
	ep.EnclosureType = contentType
	ep.EnclosureLength = size
	if ep.PubDate.IsZero() {
		ep.PubDate = time.Now()
	}
	seq, err := o.db.NextSequence(ctx, ch.ExternalID)
	if err != nil {
		o.compensate(ctx, key)
		return nil, wrapErr(KindUpstream, "next sequence", err)
	}
	ep.Sequence = seq
	if err := o.db.CreateEpisode(ctx, &ep); err != nil {
		o.compensate(ctx, key)
		return nil, wrapErr(KindUpstream, "insert episode", err)
	}

	// Metadata is committed; rebuild the channel's document from the full
	// episode list and swap the cache entry.
	episodes, err := o.db.ListEpisodes(ctx, ch.ExternalID)
	if err != nil {
		return nil, wrapErr(KindUpstream, "list episodes", err)
	}
	body, err := feed.Build(ch, episodes)
	if err != nil {
		return nil, wrapErr(KindConsistency, "build feed", err)
	}
	o.cache.Upsert(ch.ExternalID, &model.FeedDocument{
		ChannelExternalID: ch.ExternalID,
		Title:             model.NormalizeTitle(ch.Title),
		XML:               body,
		BuiltAt:           time.Now(),
	})

	o.logger.Info("episode uploaded",
		"channel", ch.ExternalID, "episode", episodeID, "key", key, "bytes", size)
	return &Receipt{EpisodeID: episodeID, Key: key, Token: req.Token}, nil
}

// resolveAudio returns the audio reader and its byte length, from the staged
// file when present, otherwise from the streamed body.
func (o *Orchestrator) resolveAudio(req *Request) (io.ReadCloser, int64, error) {
	if req.StagedPath != "" {
		f, err := os.Open(req.StagedPath)
		if err != nil {
			return nil, 0, fmt.Errorf("open staged file: %w", err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("stat staged file: %w", err)
		}
		return f, info.Size(), nil
	}
	if req.Audio == nil {
		return nil, 0, errors.New("no audio provided")
	}
	if req.AudioLength <= 0 {
		return nil, 0, errors.New("missing audio length")
	}
	return io.NopCloser(req.Audio), req.AudioLength, nil
}

// lockChannel resolves the target channel and returns it with its lock held.
// A request may address an existing channel by title under a different
// declared external id; the serialized section must then hold the resolved
// channel's lock, not the declared one's, so resolution is retried under the
// correct lock whenever the two disagree.
func (o *Orchestrator) lockChannel(ctx context.Context, want *model.Channel) (*model.Channel, func(), error) {
	lockID := want.ExternalID
	for {
		unlock := o.locks.acquire(lockID)
		ch, err := o.ensureChannel(ctx, want)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if ch.ExternalID == lockID {
			return ch, unlock, nil
		}
		unlock()
		lockID = ch.ExternalID
	}
}

// ensureChannel returns the target channel, creating it when neither the
// external id nor the title matches an existing record.
func (o *Orchestrator) ensureChannel(ctx context.Context, want *model.Channel) (*model.Channel, error) {
	ch, err := o.db.GetChannel(ctx, want.ExternalID)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	ch, err = o.db.GetChannelByTitle(ctx, want.Title)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	created := *want
	id, err := o.db.CreateChannel(ctx, &created)
	if err != nil {
		return nil, err
	}
	created.ID = id
	o.logger.Info("channel created", "channel", created.ExternalID, "title", created.Title)
	return &created, nil
}

// compensate deletes the blob written before a failed metadata write. The
// delete keeps running even when the request context is already canceled;
// its failure leaves an orphaned blob, so it is always reported.
func (o *Orchestrator) compensate(ctx context.Context, key string) {
	if err := o.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		o.logger.Error("compensating delete failed; blob orphaned", "key", key, "error", err)
	}
}
