package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryan-buckman/podhost/internal/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore wraps the SQLite connection.
type SQLiteStore struct {
	conn *sql.DB
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &SQLiteStore{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *SQLiteStore) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the backend name.
func (db *SQLiteStore) DatabaseType() string {
	return "SQLite"
}

func (db *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		normalized_title TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		managing_editor TEXT NOT NULL DEFAULT '',
		generator TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		image_title TEXT NOT NULL DEFAULT '',
		image_link TEXT NOT NULL DEFAULT '',
		image_width INTEGER NOT NULL DEFAULT 0,
		image_height INTEGER NOT NULL DEFAULT 0,
		last_build_date DATETIME,
		pub_date DATETIME,
		itunes_new_feed_url TEXT NOT NULL DEFAULT '',
		itunes_summary TEXT NOT NULL DEFAULT '',
		itunes_author TEXT NOT NULL DEFAULT '',
		itunes_explicit INTEGER NOT NULL DEFAULT 0,
		itunes_image TEXT NOT NULL DEFAULT '',
		itunes_owner_name TEXT NOT NULL DEFAULT '',
		itunes_owner_email TEXT NOT NULL DEFAULT '',
		itunes_subtitle TEXT NOT NULL DEFAULT '',
		itunes_category TEXT NOT NULL DEFAULT '',
		sy_update_period TEXT NOT NULL DEFAULT '',
		sy_update_frequency TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		channel_external_id TEXT NOT NULL REFERENCES channels(external_id),
		sequence INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		content_encoded TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		enclosure_url TEXT NOT NULL,
		enclosure_type TEXT NOT NULL,
		enclosure_length INTEGER NOT NULL,
		pub_date DATETIME,
		itunes_subtitle TEXT NOT NULL DEFAULT '',
		itunes_image TEXT NOT NULL DEFAULT '',
		itunes_duration TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_episodes_channel ON episodes(channel_external_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

const channelColumns = `id, external_id, title, category, description, managing_editor,
	generator, link, language, image_url, image_title, image_link, image_width, image_height,
	last_build_date, pub_date, itunes_new_feed_url, itunes_summary, itunes_author,
	itunes_explicit, itunes_image, itunes_owner_name, itunes_owner_email, itunes_subtitle,
	itunes_category, sy_update_period, sy_update_frequency`

const episodeColumns = `id, channel_external_id, sequence, title, author, category,
	description, content_encoded, link, enclosure_url, enclosure_type, enclosure_length,
	pub_date, itunes_subtitle, itunes_image, itunes_duration`

// --- Channel Methods ---

// ListChannels returns all channels ordered by title.
func (db *SQLiteStore) ListChannels(ctx context.Context) ([]model.Channel, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+channelColumns+" FROM channels ORDER BY title")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChannels(rows)
}

// GetChannel returns the channel with the given external id.
func (db *SQLiteStore) GetChannel(ctx context.Context, externalID string) (*model.Channel, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+channelColumns+" FROM channels WHERE external_id = ?", externalID)
	return scanChannel(row)
}

// GetChannelByTitle returns the channel whose normalized title matches
// (case-insensitive, hyphens as spaces, whitespace collapsed).
func (db *SQLiteStore) GetChannelByTitle(ctx context.Context, title string) (*model.Channel, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+channelColumns+" FROM channels WHERE normalized_title = ?",
		model.NormalizeTitle(title))
	return scanChannel(row)
}

// ChannelExists reports whether a channel matches by external id or
// normalized title.
func (db *SQLiteStore) ChannelExists(ctx context.Context, titleOrID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM channels WHERE external_id = ? OR normalized_title = ?",
		titleOrID, model.NormalizeTitle(titleOrID)).Scan(&n)
	return n > 0, err
}

// CreateChannel inserts a new channel. Returns the row id.
func (db *SQLiteStore) CreateChannel(ctx context.Context, ch *model.Channel) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO channels (external_id, title, normalized_title, category, description,
			managing_editor, generator, link, language, image_url, image_title, image_link,
			image_width, image_height, last_build_date, pub_date, itunes_new_feed_url,
			itunes_summary, itunes_author, itunes_explicit, itunes_image, itunes_owner_name,
			itunes_owner_email, itunes_subtitle, itunes_category, sy_update_period,
			sy_update_frequency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ExternalID, ch.Title, model.NormalizeTitle(ch.Title), ch.Category,
		ch.Description, ch.ManagingEditor, ch.Generator, ch.Link, ch.Language,
		ch.ImageURL, ch.ImageTitle, ch.ImageLink,
		ch.ImageWidth, ch.ImageHeight, nullTime(ch.LastBuildDate), nullTime(ch.PubDate),
		ch.ITunesNewFeedURL, ch.ITunesSummary, ch.ITunesAuthor, ch.ITunesExplicit,
		ch.ITunesImage, ch.ITunesOwnerName, ch.ITunesOwnerEmail, ch.ITunesSubtitle,
		ch.ITunesCategory, ch.SyUpdatePeriod, ch.SyUpdateFrequency)
	if err != nil {
		return 0, translateConstraint(err)
	}
	return res.LastInsertId()
}

// --- Episode Methods ---

// ListEpisodes returns a channel's episodes, newest publish date first.
func (db *SQLiteStore) ListEpisodes(ctx context.Context, channelExternalID string) ([]model.Episode, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+episodeColumns+` FROM episodes
		WHERE channel_external_id = ?
		ORDER BY pub_date DESC, sequence DESC`, channelExternalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

// CreateEpisode inserts a new episode.
func (db *SQLiteStore) CreateEpisode(ctx context.Context, ep *model.Episode) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO episodes (id, channel_external_id, sequence, title, author, category,
			description, content_encoded, link, enclosure_url, enclosure_type,
			enclosure_length, pub_date, itunes_subtitle, itunes_image, itunes_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.ChannelExternalID, ep.Sequence, ep.Title, ep.Author, ep.Category,
		ep.Description, ep.ContentEncoded, ep.Link, ep.EnclosureURL, ep.EnclosureType,
		ep.EnclosureLength, nullTime(ep.PubDate), ep.ITunesSubtitle, ep.ITunesImage,
		ep.ITunesDuration)
	return err
}

// NextSequence returns one past the channel's highest episode sequence.
func (db *SQLiteStore) NextSequence(ctx context.Context, channelExternalID string) (int64, error) {
	var next int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence), 0) + 1 FROM episodes WHERE channel_external_id = ?",
		channelExternalID).Scan(&next)
	return next, err
}
