package server

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pokerplan/pokerd/pkg/poker"
	"github.com/pokerplan/pokerd/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// nullConn is a transport that is never read or written; engine tests
// interact with the session queue directly.
type nullConn struct{}

func (nullConn) ReadRecord() ([]byte, error) { return nil, ErrSessionClosed }
func (nullConn) WriteRecord([]byte) error    { return nil }
func (nullConn) Close() error                { return nil }
func (nullConn) RemoteAddr() string          { return "test" }

func newTestEngine() *Engine {
	return NewEngine(poker.NewState(poker.DefaultVotingConfig()), testLogger(), NewMetrics(prometheus.NewRegistry()))
}

func newTestSession(e *Engine) *Session {
	return NewSession(e, nullConn{}, DefaultSessionConfig(), testLogger())
}

func recvMsg(t *testing.T, s *Session) *protocol.ServerMessage {
	t.Helper()
	select {
	case m := <-s.send:
		return m
	case <-time.After(time.Second):
		t.Fatal("no outbound record within 1s")
		return nil
	}
}

func loginMsg(name string, role poker.Role) *protocol.ClientMessage {
	return &protocol.ClientMessage{
		Kind:   protocol.KindLogin,
		Name:   name,
		Role:   role,
		Color:  poker.AvatarColors[0],
		Symbol: poker.AvatarSymbols[0],
	}
}

func adminMsg(action protocol.AdminAction) *protocol.ClientMessage {
	return &protocol.ClientMessage{Kind: protocol.KindAdmin, Action: action}
}

func TestLoginSendsWelcomeThenState(t *testing.T) {
	e := newTestEngine()
	sess := newTestSession(e)

	id := e.Login(context.Background(), sess, uuid.Nil, loginMsg("ada", poker.RoleFacilitator))
	if id == uuid.Nil {
		t.Fatal("login did not assign an id")
	}

	welcome := recvMsg(t, sess)
	if welcome.Kind != protocol.KindWelcome {
		t.Fatalf("first record kind = %q, want welcome", welcome.Kind)
	}
	if welcome.ParticipantID == nil || *welcome.ParticipantID != id {
		t.Errorf("welcome id = %v, want %s", welcome.ParticipantID, id)
	}
	if welcome.Snapshot == nil || len(welcome.Snapshot.Participants) != 1 {
		t.Errorf("welcome snapshot = %+v", welcome.Snapshot)
	}

	state := recvMsg(t, sess)
	if state.Kind != protocol.KindState {
		t.Errorf("second record kind = %q, want state", state.Kind)
	}
}

func TestRepeatLoginKeepsID(t *testing.T) {
	e := newTestEngine()
	sess := newTestSession(e)

	id := e.Login(context.Background(), sess, uuid.Nil, loginMsg("ada", poker.RoleContributor))
	again := e.Login(context.Background(), sess, id, loginMsg("ada-renamed", poker.RoleObserver))

	if again != id {
		t.Errorf("re-login id = %s, want %s", again, id)
	}
	if got := e.state.Participants[id].Name; got != "ada-renamed" {
		t.Errorf("name = %q, want ada-renamed", got)
	}
	if e.registry.Len() != 1 {
		t.Errorf("registry len = %d, want 1", e.registry.Len())
	}
}

func drain(s *Session) {
	for {
		select {
		case <-s.send:
		default:
			return
		}
	}
}

func TestVoteBroadcastIsPerViewer(t *testing.T) {
	e := newTestEngine()
	facilitator := newTestSession(e)
	contributor := newTestSession(e)

	facID := e.Login(context.Background(), facilitator, uuid.Nil, loginMsg("mona", poker.RoleFacilitator))
	conID := e.Login(context.Background(), contributor, uuid.Nil, loginMsg("ada", poker.RoleContributor))
	e.Apply(context.Background(), facID, adminMsg(protocol.ActionStartVote))
	drain(facilitator)
	drain(contributor)

	value := 5
	e.Apply(context.Background(), conID, &protocol.ClientMessage{Kind: protocol.KindVote, Value: &value})

	own := recvMsg(t, contributor)
	v := own.Snapshot.Votes[conID]
	if v.Value == nil || *v.Value != 5 {
		t.Errorf("voter's own value = %v, want 5", v.Value)
	}

	theirs := recvMsg(t, facilitator)
	fv := theirs.Snapshot.Votes[conID]
	if !fv.HasVoted {
		t.Error("HasVoted not visible to other viewers")
	}
	if fv.Value != nil {
		t.Errorf("vote value leaked to other viewer: %d", *fv.Value)
	}
}

func TestUnauthorizedAdminGetsErrorEventOnly(t *testing.T) {
	e := newTestEngine()
	facilitator := newTestSession(e)
	contributor := newTestSession(e)

	e.Login(context.Background(), facilitator, uuid.Nil, loginMsg("mona", poker.RoleFacilitator))
	conID := e.Login(context.Background(), contributor, uuid.Nil, loginMsg("ada", poker.RoleContributor))
	drain(facilitator)
	drain(contributor)

	e.Apply(context.Background(), conID, adminMsg(protocol.ActionStartVote))

	errEvent := recvMsg(t, contributor)
	if errEvent.Kind != protocol.KindError || errEvent.Code != protocol.CodeNotAuthorized {
		t.Errorf("caller got %+v, want not_authorized error", errEvent)
	}
	if e.state.Phase.Name != poker.PhaseIdle {
		t.Errorf("phase = %q, state changed by unauthorized command", e.state.Phase.Name)
	}
	select {
	case m := <-facilitator.send:
		t.Errorf("bystander received %+v", m)
	default:
	}
}

func TestPhaseMismatchedVoteIsSilent(t *testing.T) {
	e := newTestEngine()
	sess := newTestSession(e)
	id := e.Login(context.Background(), sess, uuid.Nil, loginMsg("ada", poker.RoleContributor))
	drain(sess)

	value := 5
	e.Apply(context.Background(), id, &protocol.ClientMessage{Kind: protocol.KindVote, Value: &value})

	select {
	case m := <-sess.send:
		t.Errorf("idle-phase vote produced %+v, want silence", m)
	default:
	}
}

func TestDisconnectRemovesParticipantAndVote(t *testing.T) {
	e := newTestEngine()
	facilitator := newTestSession(e)
	contributor := newTestSession(e)

	facID := e.Login(context.Background(), facilitator, uuid.Nil, loginMsg("mona", poker.RoleFacilitator))
	conID := e.Login(context.Background(), contributor, uuid.Nil, loginMsg("ada", poker.RoleContributor))
	e.Apply(context.Background(), facID, adminMsg(protocol.ActionStartVote))
	value := 8
	e.Apply(context.Background(), conID, &protocol.ClientMessage{Kind: protocol.KindVote, Value: &value})
	drain(facilitator)

	e.Disconnect(conID, contributor)

	if _, ok := e.state.Participants[conID]; ok {
		t.Error("participant survived disconnect")
	}
	if _, ok := e.state.Votes[conID]; ok {
		t.Error("vote survived disconnect")
	}
	update := recvMsg(t, facilitator)
	if update.Kind != protocol.KindState {
		t.Errorf("survivor got %q, want state update", update.Kind)
	}
}

func TestStaleDisconnectIgnored(t *testing.T) {
	e := newTestEngine()
	old := newTestSession(e)
	id := e.Login(context.Background(), old, uuid.Nil, loginMsg("ada", poker.RoleContributor))

	replacement := newTestSession(e)
	e.Login(context.Background(), replacement, id, loginMsg("ada", poker.RoleContributor))

	e.Disconnect(id, old)

	if _, ok := e.state.Participants[id]; !ok {
		t.Error("stale disconnect removed a re-logged-in participant")
	}
	if _, ok := e.registry.Get(id); !ok {
		t.Error("stale disconnect unregistered the replacement session")
	}
}

func TestKickRemovesAndClosesTarget(t *testing.T) {
	e := newTestEngine()
	facilitator := newTestSession(e)
	target := newTestSession(e)

	facID := e.Login(context.Background(), facilitator, uuid.Nil, loginMsg("mona", poker.RoleFacilitator))
	targetID := e.Login(context.Background(), target, uuid.Nil, loginMsg("ada", poker.RoleContributor))

	msg := adminMsg(protocol.ActionKick)
	msg.TargetID = &targetID
	e.Apply(context.Background(), facID, msg)

	if _, ok := e.state.Participants[targetID]; ok {
		t.Error("kicked participant still in state")
	}
	select {
	case <-target.done:
	case <-time.After(time.Second):
		t.Error("kicked session not closed within 1s")
	}
}

func TestSlowSessionIsClosedNotBlocked(t *testing.T) {
	e := newTestEngine()

	cfg := DefaultSessionConfig()
	cfg.SendQueueSize = 1
	slow := NewSession(e, nullConn{}, cfg, testLogger())

	id := e.Login(context.Background(), slow, uuid.Nil, loginMsg("ada", poker.RoleContributor))
	// Queue now holds the welcome; the login broadcast already overflowed.

	done := make(chan struct{})
	go func() {
		e.Apply(context.Background(), id, &protocol.ClientMessage{Kind: protocol.KindMove, X: 1, Y: 1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow session")
	}
	select {
	case <-slow.done:
	case <-time.After(time.Second):
		t.Error("slow session not closed within 1s")
	}
}

func TestUpdateConfigPersistsOutsideLock(t *testing.T) {
	e := newTestEngine()
	saved := make(chan poker.VotingConfig, 1)
	e.SetConfigSaver(func(_ context.Context, cfg poker.VotingConfig) error {
		saved <- cfg
		return nil
	})
	sess := newTestSession(e)
	id := e.Login(context.Background(), sess, uuid.Nil, loginMsg("mona", poker.RoleFacilitator))

	msg := adminMsg(protocol.ActionUpdateConfig)
	msg.Config = &poker.VotingConfig{Cards: []int{1, 2, 4, 8}}
	e.Apply(context.Background(), id, msg)

	select {
	case cfg := <-saved:
		if len(cfg.Cards) != 4 {
			t.Errorf("saved cards = %v", cfg.Cards)
		}
	case <-time.After(time.Second):
		t.Fatal("config not saved within 1s")
	}
	if got := e.state.Config.Cards; len(got) != 4 {
		t.Errorf("state cards = %v", got)
	}
}

func TestStartRoundAndRevealRound(t *testing.T) {
	e := newTestEngine()
	voter := newTestSession(e)
	abstainer := newTestSession(e)
	voterID := e.Login(context.Background(), voter, uuid.Nil, loginMsg("ada", poker.RoleContributor))
	e.Login(context.Background(), abstainer, uuid.Nil, loginMsg("bob", poker.RoleObserver))

	if !e.StartRound(context.Background(), "POK-12") {
		t.Fatal("StartRound rejected from idle")
	}
	if e.StartRound(context.Background(), "POK-13") {
		t.Error("StartRound accepted during voting")
	}

	value := 5
	e.Apply(context.Background(), voterID, &protocol.ClientMessage{Kind: protocol.KindVote, Value: &value})

	votes, stats, ticket, ok := e.RevealRound(context.Background())
	if !ok {
		t.Fatal("RevealRound rejected during voting")
	}
	if ticket != "POK-12" {
		t.Errorf("ticket = %q, want POK-12", ticket)
	}
	if len(votes) != 2 {
		t.Fatalf("revealed votes = %+v, want every participant listed", votes)
	}
	byName := make(map[string]*int, len(votes))
	for _, v := range votes {
		byName[v.Name] = v.Value
	}
	if v := byName["ada"]; v == nil || *v != 5 {
		t.Errorf("ada's vote = %v, want 5", v)
	}
	if v, ok := byName["bob"]; !ok || v != nil {
		t.Errorf("abstainer entry = %v present=%v, want nil vote listed", v, ok)
	}
	if stats.VotesCast != 1 || stats.TotalVoters != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if _, _, _, ok := e.RevealRound(context.Background()); ok {
		t.Error("RevealRound accepted twice")
	}
}

func TestStatusNotifierFires(t *testing.T) {
	e := newTestEngine()
	statuses := make(chan poker.Status, 8)
	e.SetStatusNotifier(func(st poker.Status) { statuses <- st })

	sess := newTestSession(e)
	e.Login(context.Background(), sess, uuid.Nil, loginMsg("ada", poker.RoleContributor))

	select {
	case st := <-statuses:
		if st.TotalPlayers != 1 {
			t.Errorf("status players = %d, want 1", st.TotalPlayers)
		}
	case <-time.After(time.Second):
		t.Fatal("no status notification within 1s")
	}
}
