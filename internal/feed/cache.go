package feed

import (
	"errors"
	"sync"

	"github.com/bryan-buckman/podhost/internal/model"
)

// ErrNotFound is returned when no cache slot exists for a channel.
var ErrNotFound = errors.New("feed: not found")

// Cache holds the rendered document for every known channel, indexed by
// external id and by normalized title. Documents are treated as immutable
// once stored; writers swap whole entries under the lock, so readers never
// observe a half-written document.
type Cache struct {
	mu      sync.RWMutex
	byID    map[string]*model.FeedDocument
	byTitle map[string]string // normalized title -> external id
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		byID:    make(map[string]*model.FeedDocument),
		byTitle: make(map[string]string),
	}
}

// GetByID returns the document for a channel external id.
func (c *Cache) GetByID(externalID string) (*model.FeedDocument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.byID[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

// GetByTitle returns the document for a channel title. Matching is
// case-insensitive; the argument may use hyphens for spaces.
func (c *Cache) GetByTitle(title string) (*model.FeedDocument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byTitle[model.NormalizeTitle(title)]
	if !ok {
		return nil, ErrNotFound
	}
	doc, ok := c.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

// Replace atomically swaps the document for an existing slot. It returns
// ErrNotFound without mutating anything when no slot exists for the id.
func (c *Cache) Replace(externalID string, doc *model.FeedDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.byID[externalID]
	if !ok {
		return ErrNotFound
	}
	if doc.Title != old.Title {
		delete(c.byTitle, old.Title)
		c.byTitle[doc.Title] = externalID
	}
	c.byID[externalID] = doc
	return nil
}

// Insert adds a slot for a channel that has none yet.
func (c *Cache) Insert(externalID string, doc *model.FeedDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[externalID] = doc
	c.byTitle[doc.Title] = externalID
}

// Upsert replaces the slot if present and inserts it otherwise. The upload
// path uses it so a brand-new channel gets a servable feed immediately.
func (c *Cache) Upsert(externalID string, doc *model.FeedDocument) {
	if err := c.Replace(externalID, doc); errors.Is(err, ErrNotFound) {
		c.Insert(externalID, doc)
	}
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
