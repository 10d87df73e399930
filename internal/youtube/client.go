// Package youtube fetches transcripts and lightweight metadata for videos.
// Transcripts come from the timedtext captions endpoint; metadata comes from
// oEmbed and degrades to safe defaults when unavailable.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/GavinStein1/pod2chat/internal/contextutil"
	"github.com/GavinStein1/pod2chat/internal/segmenter"
)

// ErrNoTranscript means the video has no fetchable captions. Indexing cannot
// proceed without a transcript.
var ErrNoTranscript = errors.New("no transcript available")

// ErrInvalidVideoRef means the input is neither a video id nor a URL
// containing one.
var ErrInvalidVideoRef = errors.New("no video id found")

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoInfo is the metadata attached to summaries and answers.
type VideoInfo struct {
	ID       string
	URL      string
	Title    string
	Channel  string
	Duration float64
}

// Client talks to the public endpoints.
type Client struct {
	httpClient *http.Client
	base       string
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		base:       "https://www.youtube.com",
	}
}

// ParseVideoID extracts the 11-character video id from the common URL
// shapes, or validates a raw id.
func ParseVideoID(raw string) (string, error) {
	if videoIDRe.MatchString(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unparseable video reference %q: %w", raw, ErrInvalidVideoRef)
	}

	if strings.HasSuffix(u.Host, "youtu.be") {
		id := strings.Trim(u.Path, "/")
		if videoIDRe.MatchString(id) {
			return id, nil
		}
	}

	if id := u.Query().Get("v"); videoIDRe.MatchString(id) {
		return id, nil
	}

	for _, prefix := range []string{"/embed/", "/shorts/", "/live/"} {
		if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
			id := strings.Trim(rest, "/")
			if videoIDRe.MatchString(id) {
				return id, nil
			}
		}
	}

	return "", fmt.Errorf("could not find a video id in %q: %w", raw, ErrInvalidVideoRef)
}

// WatchURL is the canonical watch page for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

type timedtextResponse struct {
	Events []struct {
		StartMs    float64 `json:"tStartMs"`
		DurationMs float64 `json:"dDurationMs"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// FetchTranscript returns the video's caption track as raw segments.
func (c *Client) FetchTranscript(ctx context.Context, videoID string) ([]segmenter.RawSegment, error) {
	endpoint := fmt.Sprintf("%s/api/timedtext?v=%s&lang=en&fmt=json3", c.base, url.QueryEscape(videoID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcript request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcript request returned status %d: %w", resp.StatusCode, ErrNoTranscript)
	}

	var decoded timedtextResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		// The endpoint answers 200 with an empty body when no captions
		// exist.
		return nil, ErrNoTranscript
	}
	if len(decoded.Events) == 0 {
		return nil, ErrNoTranscript
	}

	var segments []segmenter.RawSegment
	for _, ev := range decoded.Events {
		var b strings.Builder
		for _, s := range ev.Segs {
			b.WriteString(s.UTF8)
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		start := ev.StartMs / 1000
		segments = append(segments, segmenter.RawSegment{
			Start: start,
			End:   start + ev.DurationMs/1000,
			Text:  text,
		})
	}
	if len(segments) == 0 {
		return nil, ErrNoTranscript
	}
	return segments, nil
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// FetchMetadata returns the video's title and channel via oEmbed. Metadata
// is decoration, so failures degrade to "Unknown" rather than erroring.
func (c *Client) FetchMetadata(ctx context.Context, videoID string) VideoInfo {
	logger := contextutil.LoggerFromContext(ctx)
	info := VideoInfo{
		ID:      videoID,
		URL:     WatchURL(videoID),
		Title:   "Unknown",
		Channel: "Unknown",
	}

	endpoint := fmt.Sprintf("%s/oembed?url=%s&format=json",
		c.base, url.QueryEscape(WatchURL(videoID)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return info
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("metadata request failed", slog.String("error", err.Error()))
		return info
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("metadata request rejected", slog.Int("status", resp.StatusCode))
		return info
	}

	var decoded oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		logger.Warn("metadata response unreadable", slog.String("error", err.Error()))
		return info
	}

	if decoded.Title != "" {
		info.Title = decoded.Title
	}
	if decoded.AuthorName != "" {
		info.Channel = decoded.AuthorName
	}
	return info
}
