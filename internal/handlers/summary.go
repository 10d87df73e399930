package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/GavinStein1/pod2chat/internal/summary"
	"github.com/GavinStein1/pod2chat/internal/youtube"
)

// MetadataFetcher supplies display metadata for a video.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, videoID string) youtube.VideoInfo
}

// SummaryHandler generates full summaries of indexed videos.
type SummaryHandler struct {
	summarizer *summary.Summarizer
	metadata   MetadataFetcher
	dataDir    string
}

func NewSummaryHandler(s *summary.Summarizer, metadata MetadataFetcher, dataDir string) *SummaryHandler {
	return &SummaryHandler{summarizer: s, metadata: metadata, dataDir: dataDir}
}

type summaryRequest struct {
	Video string `json:"video"`
}

type summaryResponse struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Summarize handles POST /api/summary.
func (h *SummaryHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Video) == "" {
		writeError(w, r, http.StatusBadRequest, "video is required")
		return
	}

	videoID, repo, closeStore, err := openStore(h.dataDir, req.Video)
	if err != nil {
		if errors.Is(err, errNotIndexed) {
			writeError(w, r, http.StatusNotFound, "video has not been indexed")
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	defer closeStore()

	coarse, err := repo.ListByTier(r.Context(), "coarse")
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to load chunks")
		return
	}
	if len(coarse) == 0 {
		writeError(w, r, http.StatusNotFound, "video has no indexed content")
		return
	}

	info := h.metadata.FetchMetadata(r.Context(), videoID)
	meta := summary.Metadata{
		VideoID:  info.ID,
		Title:    info.Title,
		Channel:  info.Channel,
		Duration: info.Duration,
		URL:      info.URL,
	}

	doc, err := h.summarizer.Summarize(r.Context(), meta, coarse)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to generate summary")
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		VideoID: videoID,
		Title:   info.Title,
		Summary: doc,
	})
}
