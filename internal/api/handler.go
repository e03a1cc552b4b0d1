package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/seqscribe/seqscribe/internal/buffer"
	"github.com/seqscribe/seqscribe/internal/diskspace"
	"github.com/seqscribe/seqscribe/internal/merge"
	"github.com/seqscribe/seqscribe/internal/storage/sqlite"
	"github.com/seqscribe/seqscribe/internal/watcher"
	"github.com/seqscribe/seqscribe/internal/websocket"
	"github.com/seqscribe/seqscribe/internal/worker"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

// Handler serves the ops API endpoints
type Handler struct {
	watcher     *watcher.Watcher
	pool        *worker.Pool
	coordinator *merge.Coordinator
	results     *buffer.Buffer
	history     *sqlite.HistoryStorage // optional
	wsServer    *websocket.Server
	inboxDir    string
	startedAt   time.Time
	logger      *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	w *watcher.Watcher,
	pool *worker.Pool,
	coordinator *merge.Coordinator,
	results *buffer.Buffer,
	history *sqlite.HistoryStorage,
	wsServer *websocket.Server,
	inboxDir string,
	log *logger.Logger,
) *Handler {
	return &Handler{
		watcher:     w,
		pool:        pool,
		coordinator: coordinator,
		results:     results,
		history:     history,
		wsServer:    wsServer,
		inboxDir:    inboxDir,
		startedAt:   time.Now().UTC(),
		logger:      log.Named("api-handler"),
	}
}

// GetHealth returns a liveness response
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(h.startedAt).String(),
		"started": h.startedAt,
	})
}

// GetStatus returns a snapshot of the whole pipeline
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	free, _ := diskspace.FreeBytes(h.inboxDir)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"watcher": h.watcher.Stats(),
		"pool":    h.pool.Stats(),
		"merge":   h.coordinator.Stats(),
		"buffer": map[string]interface{}{
			"size":      h.results.Size(),
			"sequences": h.results.Sequences(),
		},
		"disk_free_bytes": free,
		"ws_clients":      h.wsServer.ClientCount(),
	})
}

// GetJobs returns recent job records from the history store
func (h *Handler) GetJobs(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "history storage is disabled")
		return
	}

	limit := queryLimit(r, 50)
	var (
		records []*sqlite.JobRecord
		err     error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		records, err = h.history.GetJobsByStatus(status, limit)
	} else {
		records, err = h.history.GetRecentJobs(limit)
	}
	if err != nil {
		h.logger.Error("Failed to query job records", logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to query jobs")
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// GetArchives returns archived transcript records from the history store
func (h *Handler) GetArchives(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "history storage is disabled")
		return
	}

	records, err := h.history.GetArchives(queryLimit(r, 50))
	if err != nil {
		h.logger.Error("Failed to query archive records", logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to query archives")
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// SkipCursor advances the merge cursor past a permanent gap
func (h *Handler) SkipCursor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To int64 `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.coordinator.SkipTo(req.To); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Info("Merge cursor skipped via API", logger.Int64("to", req.To))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cursor": h.coordinator.Cursor(),
	})
}

// HandleWebSocket upgrades the connection for live pipeline events
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.Handle(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func queryLimit(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return def
}
