package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/GavinStein1/pod2chat/internal/indexer"
	"github.com/GavinStein1/pod2chat/internal/youtube"
)

// VideoHandler ingests videos.
type VideoHandler struct {
	indexer *indexer.Indexer
}

func NewVideoHandler(ix *indexer.Indexer) *VideoHandler {
	return &VideoHandler{indexer: ix}
}

type indexRequest struct {
	URL string `json:"url"`
}

// Index handles POST /api/videos.
func (h *VideoHandler) Index(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, r, http.StatusBadRequest, "url is required")
		return
	}

	result, err := h.indexer.Index(r.Context(), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, youtube.ErrNoTranscript):
			writeError(w, r, http.StatusUnprocessableEntity,
				"no transcript is available for this video")
		case errors.Is(err, youtube.ErrInvalidVideoRef):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "failed to index video")
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}
