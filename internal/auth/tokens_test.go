package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	store := NewTokenStore("hunter2", time.Hour)

	token, err := store.Issue("hunter2")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !store.IsValid(token) {
		t.Error("freshly issued token should be valid")
	}
	if store.IsValid("not-a-token") {
		t.Error("unknown token should be invalid")
	}
}

func TestIssueRejectsWrongPassword(t *testing.T) {
	store := NewTokenStore("hunter2", time.Hour)
	if _, err := store.Issue("wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestTokensExpire(t *testing.T) {
	store := NewTokenStore("hunter2", time.Hour)
	now := time.Now()
	store.now = func() time.Time { return now }

	token, err := store.Issue("hunter2")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !store.IsValid(token) {
		t.Fatal("token should be valid before expiry")
	}

	now = now.Add(2 * time.Hour)
	if store.IsValid(token) {
		t.Error("token should be invalid after expiry")
	}
	// Validation prunes the expired entry.
	if _, ok := store.tokens[token]; ok {
		t.Error("expired token should have been pruned")
	}
}
