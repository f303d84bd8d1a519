package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/MrWong99/vigil/internal/conversation"
	"github.com/MrWong99/vigil/internal/history"
	"github.com/MrWong99/vigil/internal/resilience"
)

// stateBody is the GET /state response.
type stateBody struct {
	conversation.Snapshot
	LastIntent string `json:"last_intent,omitempty"`
}

// RegisterControl adds the control API to mux:
//
//	GET  /state           session state and counters
//	POST /interrupt       stop the reply being spoken
//	POST /sleep           end the current conversation
//	GET  /providers       circuit breaker state per provider
//	GET  /history?limit=n turns of the current conversation
//	GET  /history?q=text  full-text search over persisted turns
//
// POST /interrupt answers 409 when nothing is being spoken.
func (a *App) RegisterControl(mux *http.ServeMux) {
	mux.HandleFunc("GET /state", a.handleState)
	mux.HandleFunc("POST /interrupt", a.handleInterrupt)
	mux.HandleFunc("POST /sleep", a.handleSleep)
	mux.HandleFunc("GET /providers", a.handleProviders)
	mux.HandleFunc("GET /history", a.handleHistory)
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	body := stateBody{Snapshot: a.session.Snapshot()}
	if in := a.router.LastIntent(); in.Text != "" {
		body.LastIntent = in.Kind.String()
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *App) handleInterrupt(w http.ResponseWriter, _ *http.Request) {
	if a.session.State() != conversation.Speaking {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "not speaking"})
		return
	}
	a.trigger.Fire()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "interrupting"})
}

func (a *App) handleSleep(w http.ResponseWriter, _ *http.Request) {
	if a.session.State() == conversation.Sleeping {
		writeJSON(w, http.StatusOK, map[string]string{"status": "sleeping"})
		return
	}
	a.session.Sleep()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "going to sleep"})
}

func (a *App) handleProviders(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string][]resilience.EntryStatus, len(a.status))
	for kind, fn := range a.status {
		out[kind] = fn()
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	if q := r.URL.Query().Get("q"); q != "" {
		a.searchHistory(w, r, q, limit)
		return
	}
	id := a.session.Snapshot().ConversationID
	if id == "" {
		writeJSON(w, http.StatusOK, []history.Turn{})
		return
	}
	turns, err := a.history.Recent(r.Context(), id, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// searcher is implemented by stores that keep every turn, such as
// [history.PostgresStore].
type searcher interface {
	Search(ctx context.Context, query string, limit int) ([]history.Turn, error)
}

func (a *App) searchHistory(w http.ResponseWriter, r *http.Request, q string, limit int) {
	s, ok := a.history.(searcher)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "history search needs history.postgres_dsn"})
		return
	}
	turns, err := s.Search(r.Context(), q, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
