package database

import (
	"database/sql"
	"strings"
	"time"

	"github.com/bryan-buckman/podhost/internal/model"
)

// Both backends select columns in the same order, so the scan helpers are
// shared.

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannelInto(s rowScanner, ch *model.Channel) error {
	var lastBuild, pubDate sql.NullTime
	err := s.Scan(&ch.ID, &ch.ExternalID, &ch.Title, &ch.Category, &ch.Description,
		&ch.ManagingEditor, &ch.Generator, &ch.Link, &ch.Language, &ch.ImageURL,
		&ch.ImageTitle, &ch.ImageLink, &ch.ImageWidth, &ch.ImageHeight, &lastBuild,
		&pubDate, &ch.ITunesNewFeedURL, &ch.ITunesSummary, &ch.ITunesAuthor,
		&ch.ITunesExplicit, &ch.ITunesImage, &ch.ITunesOwnerName, &ch.ITunesOwnerEmail,
		&ch.ITunesSubtitle, &ch.ITunesCategory, &ch.SyUpdatePeriod, &ch.SyUpdateFrequency)
	if err != nil {
		return err
	}
	if lastBuild.Valid {
		ch.LastBuildDate = lastBuild.Time
	}
	if pubDate.Valid {
		ch.PubDate = pubDate.Time
	}
	return nil
}

func scanChannel(row *sql.Row) (*model.Channel, error) {
	var ch model.Channel
	if err := scanChannelInto(row, &ch); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func scanChannels(rows *sql.Rows) ([]model.Channel, error) {
	var channels []model.Channel
	for rows.Next() {
		var ch model.Channel
		if err := scanChannelInto(rows, &ch); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func scanEpisodes(rows *sql.Rows) ([]model.Episode, error) {
	var episodes []model.Episode
	for rows.Next() {
		var ep model.Episode
		var pubDate sql.NullTime
		if err := rows.Scan(&ep.ID, &ep.ChannelExternalID, &ep.Sequence, &ep.Title,
			&ep.Author, &ep.Category, &ep.Description, &ep.ContentEncoded, &ep.Link,
			&ep.EnclosureURL, &ep.EnclosureType, &ep.EnclosureLength, &pubDate,
			&ep.ITunesSubtitle, &ep.ITunesImage, &ep.ITunesDuration); err != nil {
			return nil, err
		}
		if pubDate.Valid {
			ep.PubDate = pubDate.Time
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// nullTime maps the zero time to NULL so absent dates stay absent.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// translateConstraint maps unique-violation errors from either driver onto
// ErrChannelExists.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") {
		return ErrChannelExists
	}
	return err
}
