package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"Musync/core/coordinator"
	"Musync/logger"
	"Musync/queue"

	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[Server] failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth runs every check with a shared 3 second budget.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"healthy": healthy,
		"checks":  results,
	})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]int64, len(queue.InboundQueues)*2)
	for _, q := range queue.InboundQueues {
		for _, name := range []string{q, queue.DeadLetterQueue(q)} {
			n, err := s.queue.Len(r.Context(), name)
			if err != nil {
				logger.Error("[Server] queue length failed", logger.Queue(name), logger.ErrorField(err))
				writeError(w, http.StatusBadGateway, "queue unavailable")
				return
			}
			stats[name] = n
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleFileCheck(w http.ResponseWriter, r *http.Request) {
	fileID := strings.TrimSpace(mux.Vars(r)["id"])
	if fileID == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return
	}
	s.enqueue(w, r, queue.FileCheck, coordinator.FileCheckMessage{FileID: fileID})
}

func (s *Server) handlePlaylistParse(w http.ResponseWriter, r *http.Request) {
	playlistID := strings.TrimSpace(mux.Vars(r)["id"])
	if playlistID == "" {
		writeError(w, http.StatusBadRequest, "playlist id is required")
		return
	}

	var req struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Files == nil {
		writeError(w, http.StatusBadRequest, "files is required")
		return
	}
	s.enqueue(w, r, queue.PlaylistParse, coordinator.PlaylistParseMessage{PlaylistID: playlistID, Files: req.Files})
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, queueName string, msg interface{}) {
	id, err := s.queue.Publish(r.Context(), queueName, msg)
	if err != nil {
		logger.Error("[Server] enqueue failed", logger.Queue(queueName), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "failed to enqueue message")
		return
	}
	logger.Info("[Server] message enqueued", logger.Queue(queueName), logger.String("messageId", id))
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "queue": queueName})
}
