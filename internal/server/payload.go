package server

import (
	"time"

	"github.com/bryan-buckman/podhost/internal/model"
)

// Wire shapes for the JSON API. Dates travel as RFC 3339 strings.

type channelPayload struct {
	ExternalID     string `json:"external_id"`
	Title          string `json:"title"`
	Category       string `json:"category,omitempty"`
	Description    string `json:"description,omitempty"`
	ManagingEditor string `json:"managing_editor,omitempty"`
	Generator      string `json:"generator,omitempty"`
	Link           string `json:"link,omitempty"`
	Language       string `json:"language,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	ImageTitle     string `json:"image_title,omitempty"`
	ImageLink      string `json:"image_link,omitempty"`
	ImageWidth     int    `json:"image_width,omitempty"`
	ImageHeight    int    `json:"image_height,omitempty"`
	PubDate        string `json:"pub_date,omitempty"`

	ITunesNewFeedURL string `json:"itunes_new_feed_url,omitempty"`
	ITunesSummary    string `json:"itunes_summary,omitempty"`
	ITunesAuthor     string `json:"itunes_author,omitempty"`
	ITunesExplicit   bool   `json:"itunes_explicit,omitempty"`
	ITunesImage      string `json:"itunes_image,omitempty"`
	ITunesOwnerName  string `json:"itunes_owner_name,omitempty"`
	ITunesOwnerEmail string `json:"itunes_owner_email,omitempty"`
	ITunesSubtitle   string `json:"itunes_subtitle,omitempty"`
	ITunesCategory   string `json:"itunes_category,omitempty"`

	SyUpdatePeriod    string `json:"sy_update_period,omitempty"`
	SyUpdateFrequency string `json:"sy_update_frequency,omitempty"`
}

type episodePayload struct {
	ChannelID      string `json:"channel_id"`
	Title          string `json:"title"`
	Author         string `json:"author,omitempty"`
	Category       string `json:"category,omitempty"`
	Description    string `json:"description,omitempty"`
	ContentEncoded string `json:"content_encoded,omitempty"`
	Link           string `json:"link,omitempty"`
	PubDate        string `json:"pub_date,omitempty"`

	ITunesSubtitle string `json:"itunes_subtitle,omitempty"`
	ITunesImage    string `json:"itunes_image,omitempty"`
	ITunesDuration string `json:"itunes_duration,omitempty"`
}

type uploadPayload struct {
	Token       string         `json:"token"`
	Channel     channelPayload `json:"channel"`
	Episode     episodePayload `json:"episode"`
	ContentType string         `json:"content_type,omitempty"`
	// Audio is the base64-encoded audio body (JSON route only; the
	// multipart route carries the file instead).
	Audio string `json:"audio,omitempty"`
}

func (p channelPayload) toModel() model.Channel {
	return model.Channel{
		ExternalID:        p.ExternalID,
		Title:             p.Title,
		Category:          p.Category,
		Description:       p.Description,
		ManagingEditor:    p.ManagingEditor,
		Generator:         p.Generator,
		Link:              p.Link,
		Language:          p.Language,
		ImageURL:          p.ImageURL,
		ImageTitle:        p.ImageTitle,
		ImageLink:         p.ImageLink,
		ImageWidth:        p.ImageWidth,
		ImageHeight:       p.ImageHeight,
		PubDate:           parseDate(p.PubDate),
		ITunesNewFeedURL:  p.ITunesNewFeedURL,
		ITunesSummary:     p.ITunesSummary,
		ITunesAuthor:      p.ITunesAuthor,
		ITunesExplicit:    p.ITunesExplicit,
		ITunesImage:       p.ITunesImage,
		ITunesOwnerName:   p.ITunesOwnerName,
		ITunesOwnerEmail:  p.ITunesOwnerEmail,
		ITunesSubtitle:    p.ITunesSubtitle,
		ITunesCategory:    p.ITunesCategory,
		SyUpdatePeriod:    p.SyUpdatePeriod,
		SyUpdateFrequency: p.SyUpdateFrequency,
	}
}

func channelToPayload(ch *model.Channel) channelPayload {
	return channelPayload{
		ExternalID:        ch.ExternalID,
		Title:             ch.Title,
		Category:          ch.Category,
		Description:       ch.Description,
		ManagingEditor:    ch.ManagingEditor,
		Generator:         ch.Generator,
		Link:              ch.Link,
		Language:          ch.Language,
		ImageURL:          ch.ImageURL,
		ImageTitle:        ch.ImageTitle,
		ImageLink:         ch.ImageLink,
		ImageWidth:        ch.ImageWidth,
		ImageHeight:       ch.ImageHeight,
		PubDate:           formatDate(ch.PubDate),
		ITunesNewFeedURL:  ch.ITunesNewFeedURL,
		ITunesSummary:     ch.ITunesSummary,
		ITunesAuthor:      ch.ITunesAuthor,
		ITunesExplicit:    ch.ITunesExplicit,
		ITunesImage:       ch.ITunesImage,
		ITunesOwnerName:   ch.ITunesOwnerName,
		ITunesOwnerEmail:  ch.ITunesOwnerEmail,
		ITunesSubtitle:    ch.ITunesSubtitle,
		ITunesCategory:    ch.ITunesCategory,
		SyUpdatePeriod:    ch.SyUpdatePeriod,
		SyUpdateFrequency: ch.SyUpdateFrequency,
	}
}

func (p episodePayload) toModel() model.Episode {
	return model.Episode{
		ChannelExternalID: p.ChannelID,
		Title:             p.Title,
		Author:            p.Author,
		Category:          p.Category,
		Description:       p.Description,
		ContentEncoded:    p.ContentEncoded,
		Link:              p.Link,
		PubDate:           parseDate(p.PubDate),
		ITunesSubtitle:    p.ITunesSubtitle,
		ITunesImage:       p.ITunesImage,
		ITunesDuration:    p.ITunesDuration,
	}
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
