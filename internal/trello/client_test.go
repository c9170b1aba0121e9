package trello

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, ListID: "list-1", Key: "k-secret", Token: "t-secret", HTTPClient: srv.Client()})
	return c, &hits
}

func TestCreateCardSendsFormAndQuery(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/1/cards" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("idList") != "list-1" || q.Get("key") != "k-secret" || q.Get("token") != "t-secret" {
			t.Errorf("query = %v", q)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content-type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("name") != "Shift" || r.PostForm.Get("desc") != "Host: a\nCo-Host: None\nTime: 5pm" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","name":"Shift","shortUrl":"https://trello.com/c/abc123","url":"https://trello.com/c/abc123/1-shift"}`))
	})

	card, err := c.CreateCard(context.Background(), "Shift", "Host: a\nCo-Host: None\nTime: 5pm")
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if card.ShortURL != "https://trello.com/c/abc123" || card.ID != "c1" {
		t.Fatalf("card = %+v", card)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d", hits.Load())
	}
}

func TestCreateCardNonSuccessIsNotRetried(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key k-secret", http.StatusUnauthorized)
	})

	_, err := c.CreateCard(context.Background(), "Shift", "d")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}
	if strings.Contains(err.Error(), "k-secret") {
		t.Fatalf("credentials leaked: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}

func TestCreateCardMissingShortURL(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c1"}`))
	})
	if _, err := c.CreateCard(context.Background(), "Shift", "d"); !errors.Is(err, ErrMissingShortURL) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateCardBadJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	if _, err := c.CreateCard(context.Background(), "Shift", "d"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCreateCardNetworkErrorRedactsURL(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Config{BaseURL: base, ListID: "l", Key: "k-secret", Token: "t-secret"})
	_, err := c.CreateCard(context.Background(), "Shift", "d")
	if err == nil {
		t.Fatal("expected network error")
	}
	if strings.Contains(err.Error(), "k-secret") || strings.Contains(err.Error(), "t-secret") {
		t.Fatalf("credentials leaked: %v", err)
	}
}

func TestCreateCardNotConfigured(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	c.token = ""
	if c.Configured() {
		t.Fatal("client should not be configured")
	}
	if _, err := c.CreateCard(context.Background(), "Shift", "d"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("hits = %d, want 0", hits.Load())
	}
}

func TestNewDefaultsBaseURL(t *testing.T) {
	c := New(Config{BaseURL: "  "})
	if c.base != DefaultBaseURL {
		t.Fatalf("base = %q", c.base)
	}
	c = New(Config{BaseURL: "http://x/"})
	if c.base != "http://x" {
		t.Fatalf("base = %q", c.base)
	}
}
