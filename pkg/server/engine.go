package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pokerplan/pokerd/pkg/poker"
	"github.com/pokerplan/pokerd/pkg/protocol"
)

// Engine serializes every command against the shared session. One
// mutex guards the state aggregate and the registry together; commands
// mutate, compute per-viewer snapshots, and enqueue them while holding
// it. Persistence and status notification happen after unlock.
type Engine struct {
	mu       sync.Mutex
	state    *poker.State
	registry *Registry

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time

	saveConfig func(context.Context, poker.VotingConfig) error
	notify     func(poker.Status)
}

// NewEngine builds the engine around an owned state aggregate.
func NewEngine(state *poker.State, logger *slog.Logger, metrics *Metrics) *Engine {
	return &Engine{
		state:    state,
		registry: NewRegistry(),
		logger:   logger.With("component", "engine"),
		metrics:  metrics,
		tracer:   otel.Tracer("pokerd"),
		now:      time.Now,
	}
}

// SetConfigSaver installs the callback invoked (outside the lock)
// after every accepted config update.
func (e *Engine) SetConfigSaver(fn func(context.Context, poker.VotingConfig) error) {
	e.saveConfig = fn
}

// SetStatusNotifier installs the callback invoked (outside the lock)
// after every broadcast-worthy change. The HTTP mirror's SSE broker
// subscribes here.
func (e *Engine) SetStatusNotifier(fn func(poker.Status)) {
	e.notify = fn
}

// Login identifies a connection. A uuid.Nil id means a fresh login and
// allocates a participant id; a repeat login keeps the id and replaces
// name, role, and avatar. The session receives a welcome record and
// everyone receives a state update.
func (e *Engine) Login(ctx context.Context, sess *Session, id uuid.UUID, msg *protocol.ClientMessage) uuid.UUID {
	_, span := e.tracer.Start(ctx, "engine.login")
	defer span.End()

	e.mu.Lock()
	fresh := id == uuid.Nil
	if fresh {
		id = uuid.New()
	}
	span.SetAttributes(attribute.String("participant.id", id.String()))

	e.state.Join(id, msg.Name, msg.Role, msg.Color, msg.Symbol)
	if prev := e.registry.Add(id, sess); prev != nil {
		go prev.Close()
	}
	sess.TrySend(protocol.NewWelcome(id, e.state.FilterFor(id)))
	e.broadcastLocked()

	if fresh {
		e.metrics.connectsTotal.Inc()
	}
	e.metrics.CommandOK(string(protocol.KindLogin))
	e.metrics.activeConnections.Set(float64(e.registry.Len()))
	e.metrics.Observe(e.state)
	status := e.state.StatusSummary()
	e.mu.Unlock()

	e.logger.Info("participant logged in", "participant_id", id, "name", msg.Name, "role", msg.Role, "fresh", fresh)
	e.notifyStatus(status)
	return id
}

// Apply processes one command from an identified connection.
func (e *Engine) Apply(ctx context.Context, id uuid.UUID, msg *protocol.ClientMessage) {
	ctx, span := e.tracer.Start(ctx, "engine.apply", trace.WithAttributes(
		attribute.String("command.kind", string(msg.Kind)),
		attribute.String("participant.id", id.String()),
	))
	defer span.End()

	e.mu.Lock()
	changed, save := e.applyLocked(id, msg)
	var status *poker.Status
	if changed {
		e.broadcastLocked()
		e.metrics.Observe(e.state)
		st := e.state.StatusSummary()
		status = &st
	}
	e.mu.Unlock()

	if save != nil {
		e.persistConfig(ctx, *save)
	}
	if status != nil {
		e.notifyStatus(*status)
	}
}

// applyLocked mutates the aggregate for one command. It returns
// whether a broadcast is due and, for config updates, the config to
// persist after unlock.
func (e *Engine) applyLocked(id uuid.UUID, msg *protocol.ClientMessage) (changed bool, save *poker.VotingConfig) {
	kind := string(msg.Kind)

	switch msg.Kind {
	case protocol.KindMove:
		changed = e.state.SetPosition(id, msg.X, msg.Y)

	case protocol.KindVote:
		changed = e.state.CastVote(id, msg.Value)

	case protocol.KindVoteConfirm:
		changed = e.state.SetConfirmed(id, msg.Confirmed)

	case protocol.KindAdmin:
		kind = kind + ":" + string(msg.Action)
		caller, ok := e.state.Participants[id]
		if !ok {
			break
		}
		if caller.Role != poker.RoleFacilitator {
			if sess, ok := e.registry.Get(id); ok {
				sess.TrySend(protocol.NewError(protocol.CodeNotAuthorized, "admin commands require the facilitator role"))
			}
			e.logger.Warn("unauthorized admin command", "participant_id", id, "action", msg.Action)
			break
		}
		changed, save = e.adminLocked(msg)
	}

	if changed {
		e.metrics.CommandOK(kind)
	} else {
		e.metrics.CommandRejected(kind)
	}
	return changed, save
}

func (e *Engine) adminLocked(msg *protocol.ClientMessage) (changed bool, save *poker.VotingConfig) {
	switch msg.Action {
	case protocol.ActionStartVote:
		var ticket *poker.Ticket
		if msg.Ticket != "" {
			ticket = &poker.Ticket{Title: msg.Ticket}
		}
		changed = e.state.StartVote(ticket, msg.TimeoutSecs, e.now())

	case protocol.ActionReveal:
		changed = e.state.Reveal()

	case protocol.ActionReset:
		changed = e.state.Reset()

	case protocol.ActionKick:
		target := *msg.TargetID
		changed = e.state.Remove(target)
		if sess, ok := e.registry.Get(target); ok {
			e.registry.Remove(target, sess)
			e.metrics.activeConnections.Set(float64(e.registry.Len()))
			go sess.Close()
			changed = true
		}

	case protocol.ActionUpdateConfig:
		cfg := msg.Config.Clone()
		e.state.SetConfig(cfg)
		save = &cfg
		changed = true
	}
	return changed, save
}

// Disconnect tears down a departed connection: registry entry,
// participant, and vote go together, under one lock, with one
// broadcast. A stale session (already replaced by a re-login) is
// ignored.
func (e *Engine) Disconnect(id uuid.UUID, sess *Session) {
	e.mu.Lock()
	if !e.registry.Remove(id, sess) {
		e.mu.Unlock()
		return
	}
	e.state.Remove(id)
	e.broadcastLocked()
	e.metrics.disconnectsTotal.Inc()
	e.metrics.activeConnections.Set(float64(e.registry.Len()))
	e.metrics.Observe(e.state)
	status := e.state.StatusSummary()
	e.mu.Unlock()

	e.logger.Info("participant disconnected", "participant_id", id)
	e.notifyStatus(status)
}

// broadcastLocked fans the state out to every session as that
// session's own filtered snapshot. Enqueue never blocks; a full queue
// marks the session slow and closes it asynchronously. Its own
// disconnect path cleans up.
func (e *Engine) broadcastLocked() {
	e.registry.ForEach(func(id uuid.UUID, sess *Session) {
		snap := e.state.FilterFor(id)
		if !sess.TrySend(protocol.NewStateUpdate(snap)) {
			e.metrics.droppedSends.Inc()
			e.logger.Warn("outbound queue full, closing slow session", "participant_id", id)
			go sess.Close()
		}
	})
	e.metrics.broadcastsTotal.Inc()
}

func (e *Engine) persistConfig(ctx context.Context, cfg poker.VotingConfig) {
	if e.saveConfig == nil {
		return
	}
	if err := e.saveConfig(ctx, cfg); err != nil {
		e.logger.Error("persist voting config", "error", err)
	}
}

func (e *Engine) notifyStatus(status poker.Status) {
	if e.notify != nil {
		e.notify(status)
	}
}

// Status returns the role-agnostic summary for the HTTP mirror.
func (e *Engine) Status() poker.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.StatusSummary()
}

// RevealedVote is one participant's vote as exposed by the mirror's
// reveal endpoint. Value is nil for a participant who never voted.
type RevealedVote struct {
	Name  string `json:"name"`
	Value *int   `json:"value"`
}

// StartRound opens a round on behalf of the HTTP mirror, using the
// config's default timeout. It reports whether the round started.
func (e *Engine) StartRound(ctx context.Context, ticket string) bool {
	_, span := e.tracer.Start(ctx, "engine.start_round")
	defer span.End()

	e.mu.Lock()
	var t *poker.Ticket
	if ticket != "" {
		t = &poker.Ticket{Title: ticket}
	}
	changed := e.state.StartVote(t, nil, e.now())
	var status *poker.Status
	if changed {
		e.broadcastLocked()
		e.metrics.Observe(e.state)
		st := e.state.StatusSummary()
		status = &st
	}
	e.mu.Unlock()

	if status != nil {
		e.notifyStatus(*status)
	}
	return changed
}

// RevealRound closes the round on behalf of the HTTP mirror and
// returns every participant's vote (nil for abstainers), the round
// statistics, and the current ticket title.
func (e *Engine) RevealRound(ctx context.Context) ([]RevealedVote, poker.Statistics, string, bool) {
	_, span := e.tracer.Start(ctx, "engine.reveal_round")
	defer span.End()

	e.mu.Lock()
	if !e.state.Reveal() {
		e.mu.Unlock()
		return nil, poker.Statistics{}, "", false
	}
	votes := make([]RevealedVote, 0, len(e.state.Participants))
	values := make([]int, 0, len(e.state.Votes))
	for id, p := range e.state.Participants {
		rv := RevealedVote{Name: p.Name}
		if v, ok := e.state.Votes[id]; ok {
			value := v
			rv.Value = &value
			values = append(values, v)
		}
		votes = append(votes, rv)
	}
	var ticket string
	if e.state.Ticket != nil {
		ticket = e.state.Ticket.Title
	}
	stats := poker.CalculateStatistics(values, len(e.state.Participants))
	e.broadcastLocked()
	e.metrics.Observe(e.state)
	status := e.state.StatusSummary()
	e.mu.Unlock()

	e.notifyStatus(status)
	return votes, stats, ticket, true
}

// CloseAll closes every live session. Used during shutdown.
func (e *Engine) CloseAll() {
	e.mu.Lock()
	sessions := make([]*Session, 0, e.registry.Len())
	e.registry.ForEach(func(_ uuid.UUID, s *Session) {
		sessions = append(sessions, s)
	})
	e.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
