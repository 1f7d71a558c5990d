// Package database provides storage backends for podcast metadata.
package database

import (
	"context"
	"errors"

	"github.com/bryan-buckman/podhost/internal/model"
)

// ErrNotFound is returned when a channel or episode does not exist.
var ErrNotFound = errors.New("database: not found")

// ErrChannelExists is returned when creating a channel whose external id is
// already taken.
var ErrChannelExists = errors.New("database: channel exists")

// Store defines the interface for metadata operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// Channel operations
	ListChannels(ctx context.Context) ([]model.Channel, error)
	GetChannel(ctx context.Context, externalID string) (*model.Channel, error)
	GetChannelByTitle(ctx context.Context, title string) (*model.Channel, error)
	// ChannelExists reports whether any channel matches the argument as an
	// external id or, failing that, as a normalized title
	// (see model.NormalizeTitle).
	ChannelExists(ctx context.Context, titleOrID string) (bool, error)
	CreateChannel(ctx context.Context, ch *model.Channel) (int64, error)

	// Episode operations
	ListEpisodes(ctx context.Context, channelExternalID string) ([]model.Episode, error)
	CreateEpisode(ctx context.Context, ep *model.Episode) error
	// NextSequence returns one past the highest episode sequence number for
	// the channel (1 for a channel with no episodes).
	NextSequence(ctx context.Context, channelExternalID string) (int64, error)
}
