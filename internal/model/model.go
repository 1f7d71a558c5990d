// Package model defines shared data structures.
package model

import (
	"strings"
	"time"
)

// Channel represents a podcast channel as stored in the metadata store.
type Channel struct {
	ID             int64
	ExternalID     string // stable public identifier (uuid)
	Title          string
	Category       string
	Description    string
	ManagingEditor string
	Generator      string
	Link           string
	Language       string
	ImageURL       string
	ImageTitle     string
	ImageLink      string
	ImageWidth     int
	ImageHeight    int
	LastBuildDate  time.Time
	PubDate        time.Time

	ITunesNewFeedURL string
	ITunesSummary    string
	ITunesAuthor     string
	ITunesExplicit   bool
	ITunesImage      string
	ITunesOwnerName  string
	ITunesOwnerEmail string
	ITunesSubtitle   string
	ITunesCategory   string

	SyUpdatePeriod    string
	SyUpdateFrequency string
}

// Episode represents a single podcast episode.
type Episode struct {
	ID                string // uuid, doubles as the feed item guid
	ChannelExternalID string
	Sequence          int64
	Title             string
	Author            string
	Category          string
	Description       string
	ContentEncoded    string
	Link              string
	EnclosureURL      string
	EnclosureType     string // MIME type, e.g. audio/mpeg
	EnclosureLength   int64  // bytes
	PubDate           time.Time

	ITunesSubtitle string
	ITunesImage    string
	ITunesDuration string
}

// FeedDocument is one fully rendered RSS document for a channel. The body is
// a complete snapshot; it is replaced wholesale, never patched.
type FeedDocument struct {
	ChannelExternalID string
	Title             string // normalized, see NormalizeTitle
	XML               []byte
	BuiltAt           time.Time
}

// NormalizeTitle lowers a channel title for lookup: hyphens become spaces and
// runs of whitespace collapse, so the request path "My-Show" and the stored
// title "My  Show" resolve to the same key.
func NormalizeTitle(title string) string {
	title = strings.ToLower(strings.ReplaceAll(title, "-", " "))
	return strings.Join(strings.Fields(title), " ")
}
