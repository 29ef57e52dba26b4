package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/engine"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// streamHeartbeat keeps idle SSE connections alive through proxies.
const streamHeartbeat = 25 * time.Second

func ownerFromPath(r *http.Request) (string, error) {
	owner := r.PathValue("owner")
	if owner == "" {
		return "", fmt.Errorf("%w: missing owner", errBadRequestBody)
	}
	return owner, nil
}

func (s *Server) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	input, err := parseExpenseRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ev, err := s.gateway.RecordExpense(r.Context(), owner, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventResponse{EventID: ev.ID})
}

func (s *Server) handleRecordIncome(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	input, err := parseIncomeRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ev, err := s.gateway.RecordIncome(r.Context(), owner, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventResponse{EventID: ev.ID})
}

func (s *Server) handleRemoveTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	target, err := parseDeleteRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.gateway.RemoveTransaction(r.Context(), owner, target); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBudget serves a point-in-time projection with derived views.
// A missing record answers 200 with zero totals, not 404.
func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, _, err := s.store.Get(r.Context(), owner)
	exists := err == nil
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		writeError(w, r, err)
		return
	}

	proj := core.BuildProjection(rec.Expenses, rec.Incomes, exists)
	writeJSON(w, http.StatusOK, buildBudgetResponse(owner, proj))
}

// handleStream pushes one SSE event per projection change until the
// client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	handle, err := s.engine.Subscribe(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer handle.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.InfoContext(r.Context(), "Stream opened", applog.FieldOwnerID, owner)

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.InfoContext(r.Context(), "Stream closed", applog.FieldOwnerID, owner)
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-handle.Updates():
			if err := s.writeStreamEvent(w, owner, handle); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) writeStreamEvent(w http.ResponseWriter, owner string, handle *engine.Handle) error {
	if lastErr := handle.LastError(); lastErr != nil {
		body, err := json.Marshal(errorResponse{Error: lastErr.Error()})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: error\ndata: %s\n\n", body)
		return err
	}

	body, err := json.Marshal(buildBudgetResponse(owner, handle.Projection()))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: budget\ndata: %s\n\n", body)
	return err
}
