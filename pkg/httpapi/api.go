package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pokerplan/pokerd/pkg/poker"
	"github.com/pokerplan/pokerd/pkg/server"
)

// StatusSource is the read side of the mirror.
type StatusSource interface {
	Status() poker.Status
}

// AdminActions is the only write surface the mirror exposes.
type AdminActions interface {
	StartRound(ctx context.Context, ticket string) bool
	RevealRound(ctx context.Context) ([]server.RevealedVote, poker.Statistics, string, bool)
}

// keepAliveInterval is the SSE comment-frame interval that keeps
// intermediaries from timing the stream out.
const keepAliveInterval = 15 * time.Second

// API is the HTTP mirror.
type API struct {
	status StatusSource
	admin  AdminActions
	broker *Broker
	logger *slog.Logger
	tracer trace.Tracer
}

// New builds the mirror over a status source and admin surface.
func New(status StatusSource, admin AdminActions, logger *slog.Logger) *API {
	return &API{
		status: status,
		admin:  admin,
		broker: NewBroker(),
		logger: logger.With("component", "httpapi"),
		tracer: otel.Tracer("pokerd"),
	}
}

// Notify feeds a status update into the SSE stream. Wire it to the
// engine's status notifier.
func (a *API) Notify(st poker.Status) {
	a.broker.Publish(st)
}

// Router assembles the chi router. ws, if non-nil, is mounted at /ws
// so both surfaces share one HTTP listener.
func (a *API) Router(ws http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(allowAllCORS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/start-voting", a.handleStartVoting)
		r.Post("/reveal", a.handleReveal)
		r.Get("/status-poll", a.handleStatusPoll)
		r.Get("/status", a.handleStatusStream)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if ws != nil {
		r.Handle("/ws", ws)
	}
	return r
}

// allowAllCORS is deliberately permissive: the mirror is read-mostly
// and serves a browser extension running on arbitrary origins.
func allowAllCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PlayerStatus is one participant in a status response.
type PlayerStatus struct {
	Name     string `json:"name"`
	HasVoted bool   `json:"has_voted"`
}

// StatusUpdate is the wire shape of the mirror's status responses and
// SSE events.
type StatusUpdate struct {
	Phase            string         `json:"phase"`
	IssueNumber      *string        `json:"issue_number"`
	ConnectedPlayers []PlayerStatus `json:"connected_players"`
	VotesCast        int            `json:"votes_cast"`
	TotalPlayers     int            `json:"total_players"`
}

func statusUpdateFrom(st poker.Status) StatusUpdate {
	upd := StatusUpdate{
		Phase:            string(st.Phase),
		ConnectedPlayers: make([]PlayerStatus, 0, len(st.Players)),
		VotesCast:        st.VotesCast,
		TotalPlayers:     st.TotalPlayers,
	}
	if st.Ticket != "" {
		t := st.Ticket
		upd.IssueNumber = &t
	}
	for _, p := range st.Players {
		upd.ConnectedPlayers = append(upd.ConnectedPlayers, PlayerStatus{Name: p.Name, HasVoted: p.HasVoted})
	}
	return upd
}

type startVotingRequest struct {
	IssueNumber string `json:"issue_number"`
}

func (a *API) handleStartVoting(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "httpapi.start_voting")
	defer span.End()

	var req startVotingRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	span.SetAttributes(attribute.String("issue_number", req.IssueNumber))

	if !a.admin.StartRound(ctx, req.IssueNumber) {
		writeError(w, http.StatusConflict, "voting already in progress")
		return
	}
	a.logger.Info("round started via http", "issue_number", req.IssueNumber)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "voting_started",
		"issue_number": req.IssueNumber,
	})
}

type revealResponse struct {
	Status      string                `json:"status"`
	IssueNumber *string               `json:"issue_number"`
	Votes       []server.RevealedVote `json:"votes"`
	Statistics  poker.Statistics      `json:"statistics"`
}

func (a *API) handleReveal(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "httpapi.reveal")
	defer span.End()

	votes, stats, ticket, ok := a.admin.RevealRound(ctx)
	if !ok {
		writeError(w, http.StatusConflict, "no voting in progress")
		return
	}
	a.logger.Info("round revealed via http", "votes_cast", stats.VotesCast)
	resp := revealResponse{
		Status:     "revealed",
		Votes:      votes,
		Statistics: stats,
	}
	if ticket != "" {
		resp.IssueNumber = &ticket
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStatusPoll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusUpdateFrom(a.status.Status()))
}

func (a *API) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprint(w, "retry: 2000\n\n")
	if err := writeStatusEvent(w, statusUpdateFrom(a.status.Status())); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	ch := a.broker.Subscribe()
	defer a.broker.Unsubscribe(ch)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			// Comment frame keeps intermediaries from timing out.
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case st, ok := <-ch:
			if !ok {
				return
			}
			if err := writeStatusEvent(w, statusUpdateFrom(st)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeStatusEvent(w http.ResponseWriter, upd StatusUpdate) error {
	data, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
