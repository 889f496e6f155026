package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/queue"
)

const (
	defaultDeadJobLimit = 50
	maxDeadJobLimit     = 500
)

// DeadLetters lists and requeues bulk jobs that exhausted their retries.
type DeadLetters interface {
	DeadJobs(ctx context.Context, limit int) ([]queue.DLQEntry, error)
	Reprocess(ctx context.Context, entryIDs []string) (int, error)
}

type deadJobsResponse struct {
	Jobs []queue.DLQEntry `json:"jobs"`
}

type reprocessRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

type reprocessResponse struct {
	Reprocessed int `json:"reprocessed"`
	Requested   int `json:"requested"`
}

// DeadJobsHandler handles GET /api/v1/dlq?limit=N.
func DeadJobsHandler(dlq DeadLetters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultDeadJobLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxDeadJobLimit {
				respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
				return
			}
			limit = n
		}

		jobs, err := dlq.DeadJobs(r.Context(), limit)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("failed to list dead jobs")
			respondError(w, http.StatusInternalServerError, "failed to list dead jobs")
			return
		}
		if jobs == nil {
			jobs = []queue.DLQEntry{}
		}
		respondJSON(w, http.StatusOK, deadJobsResponse{Jobs: jobs})
	}
}

// ReprocessHandler handles POST /api/v1/dlq/reprocess. Requeued jobs get a
// fresh retry budget.
func ReprocessHandler(dlq DeadLetters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reprocessRequest
		if err := decodeJSON(r, w, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.EntryIDs) == 0 {
			respondError(w, http.StatusBadRequest, "entry_ids must not be empty")
			return
		}

		log := logger.FromContext(r.Context())
		n, err := dlq.Reprocess(r.Context(), req.EntryIDs)
		if err != nil {
			// Jobs requeued before the failure stay requeued.
			log.Error().Err(err).Int("requested", len(req.EntryIDs)).Int("reprocessed", n).Msg("dlq reprocess failed")
			respondError(w, http.StatusInternalServerError, "reprocess failed")
			return
		}
		log.Info().Int("requested", len(req.EntryIDs)).Int("reprocessed", n).Msg("dead jobs requeued")
		respondJSON(w, http.StatusOK, reprocessResponse{Reprocessed: n, Requested: len(req.EntryIDs)})
	}
}
