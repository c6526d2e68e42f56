package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/studyloop-core/server/internal/agent/model"
)

func TestClientUnconfigured(t *testing.T) {
	c := NewClient(model.WebSearchConfig{})
	if c.Configured() {
		t.Fatal("empty endpoint must report unconfigured")
	}
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/search" {
			t.Errorf("unexpected path %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "mars rover" {
			t.Errorf("unexpected query %q", got)
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("unexpected format %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"title":"one","content":"a"},
			{"title":"two","content":"b"},
			{"title":"three","content":"c"},
			{"title":"four","content":"d"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(model.WebSearchConfig{Endpoint: srv.URL, Timeout: time.Second, MaxResults: 3})
	if !c.Configured() {
		t.Fatal("client should be configured")
	}

	results, err := c.Search(context.Background(), "mars rover")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Title != "one" || results[2].Title != "three" {
		t.Fatalf("unexpected ordering: %+v", results)
	}
}

func TestSearchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(model.WebSearchConfig{Endpoint: srv.URL, Timeout: time.Second, MaxResults: 3})
	if _, err := c.Search(context.Background(), "anything"); err == nil {
		t.Fatal("expected an error on non-200 status")
	}
}

func TestSearchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(model.WebSearchConfig{Endpoint: srv.URL, Timeout: time.Second, MaxResults: 3})
	if _, err := c.Search(context.Background(), "anything"); err == nil {
		t.Fatal("expected a decode error")
	}
}
