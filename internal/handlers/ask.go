package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/GavinStein1/pod2chat/internal/rag"
)

// AskHandler answers questions about indexed videos.
type AskHandler struct {
	engine  *rag.Engine
	dataDir string
}

func NewAskHandler(engine *rag.Engine, dataDir string) *AskHandler {
	return &AskHandler{engine: engine, dataDir: dataDir}
}

type askRequest struct {
	Video     string `json:"video"`
	Question  string `json:"question"`
	MaxChunks int    `json:"max_chunks"`
}

// Ask handles POST /api/ask.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Video) == "" || strings.TrimSpace(req.Question) == "" {
		writeError(w, r, http.StatusBadRequest, "video and question are required")
		return
	}

	_, repo, closeStore, err := openStore(h.dataDir, req.Video)
	if err != nil {
		if errors.Is(err, errNotIndexed) {
			writeError(w, r, http.StatusNotFound, "video has not been indexed")
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	defer closeStore()

	answer, err := h.engine.Ask(r.Context(), repo, req.Question, req.MaxChunks)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to answer question")
		return
	}

	writeJSON(w, http.StatusOK, answer)
}
