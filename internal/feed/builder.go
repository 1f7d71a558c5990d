// Package feed renders per-channel RSS documents and caches them for serving.
package feed

import (
	"encoding/xml"
	"fmt"
	"sort"
	"time"

	"github.com/bryan-buckman/podhost/internal/model"
)

// Namespace declarations carried by every rendered document.
const (
	nsContent    = "http://purl.org/rss/1.0/modules/content/"
	nsWFW        = "http://wellformedweb.org/CommentAPI/"
	nsDC         = "http://purl.org/dc/elements/1.1/"
	nsAtom       = "http://www.w3.org/2005/Atom"
	nsSy         = "http://purl.org/rss/1.0/modules/syndication/"
	nsSlash      = "http://purl.org/rss/1.0/modules/slash/"
	nsITunes     = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	nsPodcast    = "https://podcastindex.org/namespace/1.0"
	nsRawvoice   = "http://www.rawvoice.com/rawvoiceRssModule/"
	nsGoogleplay = "http://www.google.com/schemas/play-podcasts/1.0"
)

type rssDoc struct {
	XMLName      xml.Name   `xml:"rss"`
	Version      string     `xml:"version,attr"`
	ContentNS    string     `xml:"xmlns:content,attr"`
	WFWNS        string     `xml:"xmlns:wfw,attr"`
	DCNS         string     `xml:"xmlns:dc,attr"`
	AtomNS       string     `xml:"xmlns:atom,attr"`
	SyNS         string     `xml:"xmlns:sy,attr"`
	SlashNS      string     `xml:"xmlns:slash,attr"`
	ITunesNS     string     `xml:"xmlns:itunes,attr"`
	PodcastNS    string     `xml:"xmlns:podcast,attr"`
	RawvoiceNS   string     `xml:"xmlns:rawvoice,attr"`
	GoogleplayNS string     `xml:"xmlns:googleplay,attr"`
	Channel      rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title          string   `xml:"title"`
	AtomLink       atomLink `xml:"atom:link"`
	Link           string   `xml:"link"`
	Description    string   `xml:"description"`
	LastBuildDate  string   `xml:"lastBuildDate,omitempty"`
	PubDate        string   `xml:"pubDate,omitempty"`
	Language       string   `xml:"language"`
	Category       string   `xml:"category,omitempty"`
	ManagingEditor string   `xml:"managingEditor"`
	Generator      string   `xml:"generator,omitempty"`
	Image          rssImage `xml:"image"`

	ITunesNewFeedURL string          `xml:"itunes:new-feed-url,omitempty"`
	ITunesSummary    string          `xml:"itunes:summary,omitempty"`
	ITunesAuthor     string          `xml:"itunes:author,omitempty"`
	ITunesExplicit   string          `xml:"itunes:explicit"`
	ITunesImage      *itunesImage    `xml:"itunes:image,omitempty"`
	ITunesOwner      *itunesOwner    `xml:"itunes:owner,omitempty"`
	ITunesSubtitle   string          `xml:"itunes:subtitle,omitempty"`
	ITunesCategory   *itunesCategory `xml:"itunes:category,omitempty"`

	SyUpdatePeriod    string `xml:"sy:updatePeriod,omitempty"`
	SyUpdateFrequency string `xml:"sy:updateFrequency,omitempty"`

	Items []rssItem `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssImage struct {
	URL    string `xml:"url"`
	Title  string `xml:"title"`
	Link   string `xml:"link"`
	Width  int    `xml:"width,omitempty"`
	Height int    `xml:"height,omitempty"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type itunesOwner struct {
	Name  string `xml:"itunes:name,omitempty"`
	Email string `xml:"itunes:email,omitempty"`
}

type itunesCategory struct {
	Text string `xml:"text,attr"`
}

type rssItem struct {
	Title       string       `xml:"title"`
	Author      string       `xml:"author,omitempty"`
	Link        string       `xml:"link,omitempty"`
	PubDate     string       `xml:"pubDate,omitempty"`
	GUID        rssGUID      `xml:"guid"`
	Category    string       `xml:"category,omitempty"`
	Description string       `xml:"description"`
	Content     *cdataValue  `xml:"content:encoded,omitempty"`
	Enclosure   rssEnclosure `xml:"enclosure"`

	ITunesSubtitle string       `xml:"itunes:subtitle,omitempty"`
	ITunesSummary  string       `xml:"itunes:summary,omitempty"`
	ITunesImage    *itunesImage `xml:"itunes:image,omitempty"`
	ITunesDuration string       `xml:"itunes:duration,omitempty"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type cdataValue struct {
	Value string `xml:",cdata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int64  `xml:"length,attr"`
}

// Build renders a channel and its episodes into a complete RSS 2.0 document.
// It is deterministic given its inputs: episodes are ordered by publish date
// descending (sequence descending on ties) regardless of input order, and all
// user-supplied text passes through the XML marshaler's escaping.
func Build(ch *model.Channel, episodes []model.Episode) ([]byte, error) {
	sorted := make([]model.Episode, len(episodes))
	copy(sorted, episodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].PubDate.Equal(sorted[j].PubDate) {
			return sorted[i].PubDate.After(sorted[j].PubDate)
		}
		return sorted[i].Sequence > sorted[j].Sequence
	})

	selfURL := ch.ITunesNewFeedURL
	if selfURL == "" {
		selfURL = ch.Link
	}

	explicit := "no"
	if ch.ITunesExplicit {
		explicit = "yes"
	}

	channel := rssChannel{
		Title:          ch.Title,
		AtomLink:       atomLink{Href: selfURL, Rel: "self", Type: "application/rss+xml"},
		Link:           ch.Link,
		Description:    ch.Description,
		LastBuildDate:  formatDate(ch.LastBuildDate),
		PubDate:        formatDate(ch.PubDate),
		Language:       ch.Language,
		Category:       ch.Category,
		ManagingEditor: ch.ManagingEditor,
		Generator:      ch.Generator,
		Image: rssImage{
			URL:    ch.ImageURL,
			Title:  ch.ImageTitle,
			Link:   ch.ImageLink,
			Width:  ch.ImageWidth,
			Height: ch.ImageHeight,
		},
		ITunesNewFeedURL:  ch.ITunesNewFeedURL,
		ITunesSummary:     ch.ITunesSummary,
		ITunesAuthor:      ch.ITunesAuthor,
		ITunesExplicit:    explicit,
		ITunesSubtitle:    ch.ITunesSubtitle,
		SyUpdatePeriod:    ch.SyUpdatePeriod,
		SyUpdateFrequency: ch.SyUpdateFrequency,
	}
	if ch.ITunesImage != "" {
		channel.ITunesImage = &itunesImage{Href: ch.ITunesImage}
	}
	if ch.ITunesOwnerName != "" || ch.ITunesOwnerEmail != "" {
		channel.ITunesOwner = &itunesOwner{Name: ch.ITunesOwnerName, Email: ch.ITunesOwnerEmail}
	}
	if ch.ITunesCategory != "" {
		channel.ITunesCategory = &itunesCategory{Text: ch.ITunesCategory}
	}

	for _, ep := range sorted {
		item := rssItem{
			Title:       ep.Title,
			Author:      ep.Author,
			Link:        ep.Link,
			PubDate:     formatDate(ep.PubDate),
			GUID:        rssGUID{IsPermaLink: "false", Value: ep.ID},
			Category:    ep.Category,
			Description: ep.Description,
			Enclosure: rssEnclosure{
				URL:    ep.EnclosureURL,
				Type:   ep.EnclosureType,
				Length: ep.EnclosureLength,
			},
			ITunesSubtitle: ep.ITunesSubtitle,
			ITunesSummary:  ep.Description,
			ITunesDuration: ep.ITunesDuration,
		}
		if ep.ContentEncoded != "" {
			item.Content = &cdataValue{Value: ep.ContentEncoded}
		}
		if ep.ITunesImage != "" {
			item.ITunesImage = &itunesImage{Href: ep.ITunesImage}
		}
		channel.Items = append(channel.Items, item)
	}

	doc := rssDoc{
		Version:      "2.0",
		ContentNS:    nsContent,
		WFWNS:        nsWFW,
		DCNS:         nsDC,
		AtomNS:       nsAtom,
		SyNS:         nsSy,
		SlashNS:      nsSlash,
		ITunesNS:     nsITunes,
		PodcastNS:    nsPodcast,
		RawvoiceNS:   nsRawvoice,
		GoogleplayNS: nsGoogleplay,
		Channel:      channel,
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal feed for %s: %w", ch.ExternalID, err)
	}
	return append([]byte(xml.Header), output...), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC1123Z)
}
