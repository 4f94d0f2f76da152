package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ragforge/ragcore/internal/domain"
)

type fakeTranscripts struct {
	videoID string
	text    string
}

func (f *fakeTranscripts) FetchTranscript(_ context.Context, videoID string) (string, error) {
	f.videoID = videoID
	return f.text, nil
}

func TestLoadTextOnlyResourceReturnsExistingContent(t *testing.T) {
	l := New(&fakeTranscripts{})
	content, err := l.Load(context.Background(), domain.Resource{Content: "already have this"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if content != "already have this" {
		t.Fatalf("expected existing content to pass through, got %q", content)
	}
}

func TestLoadURLResourceStripsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><style>.x{color:red}</style></head><body><script>evil()</script><p>Hello world</p></body></html>`))
	}))
	defer srv.Close()

	l := New(&fakeTranscripts{})
	content, err := l.Load(context.Background(), domain.Resource{URL: srv.URL})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if content != "Hello world" {
		t.Fatalf("expected stripped text %q, got %q", "Hello world", content)
	}
}

func TestLoadYouTubeURLDelegatesToTranscriptFetcher(t *testing.T) {
	fake := &fakeTranscripts{text: "transcript text"}
	l := New(fake)

	content, err := l.Load(context.Background(), domain.Resource{URL: "https://www.youtube.com/watch?v=abc123"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if content != "transcript text" {
		t.Fatalf("expected transcript text, got %q", content)
	}
	if fake.videoID != "abc123" {
		t.Fatalf("expected video id abc123, got %q", fake.videoID)
	}
}

func TestLoadShortYouTubeURLExtractsVideoID(t *testing.T) {
	fake := &fakeTranscripts{text: "short transcript"}
	l := New(fake)

	_, err := l.Load(context.Background(), domain.Resource{URL: "https://youtu.be/xyz789"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fake.videoID != "xyz789" {
		t.Fatalf("expected video id xyz789, got %q", fake.videoID)
	}
}

func TestLoadURLFetchFailureReturnsBackendUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := New(&fakeTranscripts{})
	_, err := l.Load(context.Background(), domain.Resource{URL: srv.URL})
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
}
