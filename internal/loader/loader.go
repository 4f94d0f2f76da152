// Package loader fetches a resource's current content from its source: a
// generic URL (HTML stripped to text) or a YouTube video transcript. Both
// paths are rate-limited the way the teacher's YouTube scraper rate-limits
// calls to the YouTube Data API.
package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/resilience"
)

var youtubeHosts = map[string]bool{
	"youtube.com":     true,
	"www.youtube.com": true,
	"youtu.be":        true,
	"m.youtube.com":   true,
}

// TranscriptFetcher fetches a YouTube video's transcript text. The real
// implementation talks to a captions backend; tests substitute a fake.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string) (string, error)
}

// Loader satisfies ingestworker.Loader: it dispatches on the resource's URL
// host to either the generic HTML-to-text path or the YouTube transcript
// path.
type Loader struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	transcripts TranscriptFetcher
}

func New(transcripts TranscriptFetcher) *Loader {
	return &Loader{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     resilience.NewLimiter(5, 5),
		transcripts: transcripts,
	}
}

// Load fetches resource.URL's current content. It is a no-op returning the
// resource's existing content when URL is empty (text-only resources).
func (l *Loader) Load(ctx context.Context, resource domain.Resource) (string, error) {
	if resource.URL == "" {
		return resource.Content, nil
	}

	parsed, err := url.Parse(resource.URL)
	if err != nil {
		return "", fmt.Errorf("parse resource url: %w", err)
	}

	if youtubeHosts[parsed.Hostname()] {
		videoID := extractVideoID(parsed)
		if videoID == "" {
			return "", fmt.Errorf("could not extract video id from %s", resource.URL)
		}
		if err := l.limiter.Wait(ctx); err != nil {
			return "", err
		}
		return l.transcripts.FetchTranscript(ctx, videoID)
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.fetchURL(ctx, resource.URL)
}

func (l *Loader) fetchURL(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %v", domain.ErrBackendUnavailable, rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: fetch %s: status %d", domain.ErrBackendUnavailable, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	return extractText(string(body)), nil
}

var (
	scriptOrStyle = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlTag       = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// extractText strips script/style blocks and tags, collapsing whitespace.
// It is a plain-text approximation, not an HTML parser: good enough for
// embedding, not for rendering.
func extractText(html string) string {
	stripped := scriptOrStyle.ReplaceAllString(html, " ")
	stripped = htmlTag.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(stripped, " "))
}

func extractVideoID(u *url.URL) string {
	if u.Hostname() == "youtu.be" {
		return strings.Trim(u.Path, "/")
	}
	return u.Query().Get("v")
}
