package feed

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bryan-buckman/podhost/internal/model"
)

func doc(id, title, body string) *model.FeedDocument {
	return &model.FeedDocument{
		ChannelExternalID: id,
		Title:             model.NormalizeTitle(title),
		XML:               []byte(body),
		BuiltAt:           time.Now(),
	}
}

func TestCacheLookup(t *testing.T) {
	c := NewCache()
	c.Insert("ch-1", doc("ch-1", "My Show", "<rss/>"))

	got, err := c.GetByID("ch-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if string(got.XML) != "<rss/>" {
		t.Errorf("unexpected document: %s", got.XML)
	}

	// Titles match case-insensitively with hyphens standing in for spaces.
	for _, title := range []string{"My Show", "my show", "my-show", "MY-SHOW"} {
		if _, err := c.GetByTitle(title); err != nil {
			t.Errorf("GetByTitle(%q) failed: %v", title, err)
		}
	}

	if _, err := c.GetByID("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.GetByTitle("Other Show"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceRequiresExistingSlot(t *testing.T) {
	c := NewCache()
	if err := c.Replace("ch-1", doc("ch-1", "My Show", "<rss/>")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	c.Insert("ch-1", doc("ch-1", "My Show", "v1"))
	if err := c.Replace("ch-1", doc("ch-1", "My Show", "v2")); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	got, err := c.GetByID("ch-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if string(got.XML) != "v2" {
		t.Errorf("replace did not swap document: %s", got.XML)
	}
}

func TestReplaceMovesTitleIndex(t *testing.T) {
	c := NewCache()
	c.Insert("ch-1", doc("ch-1", "Old Name", "v1"))
	if err := c.Replace("ch-1", doc("ch-1", "New Name", "v2")); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if _, err := c.GetByTitle("new-name"); err != nil {
		t.Errorf("new title should resolve: %v", err)
	}
	if _, err := c.GetByTitle("old-name"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old title should be gone, got %v", err)
	}
}

func TestUpsertInsertsWhenMissing(t *testing.T) {
	c := NewCache()
	c.Upsert("ch-1", doc("ch-1", "My Show", "v1"))
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
	c.Upsert("ch-1", doc("ch-1", "My Show", "v2"))
	got, _ := c.GetByID("ch-1")
	if string(got.XML) != "v2" {
		t.Errorf("upsert did not replace: %s", got.XML)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry after upsert, got %d", c.Len())
	}
}

func TestConcurrentReadersSeeWholeDocuments(t *testing.T) {
	c := NewCache()
	c.Insert("ch-1", doc("ch-1", "My Show", "version-0"))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers must always observe one of the complete versions, never a
	// missing entry or a torn document.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, err := c.GetByID("ch-1")
				if err != nil {
					t.Errorf("reader saw missing entry: %v", err)
					return
				}
				if !bytes.HasPrefix(got.XML, []byte("version-")) {
					t.Errorf("reader saw torn document: %q", got.XML)
					return
				}
			}
		}()
	}

	for i := 1; i <= 100; i++ {
		if err := c.Replace("ch-1", doc("ch-1", "My Show", fmt.Sprintf("version-%d", i))); err != nil {
			t.Fatalf("Replace failed: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}
