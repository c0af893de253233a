package server

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/pokerplan/pokerd/pkg/protocol"
)

// startPipeSession runs a full session over an in-memory pipe and
// returns the client end plus the engine behind it.
func startPipeSession(t *testing.T, cfg *SessionConfig) (net.Conn, *Engine) {
	t.Helper()
	if cfg == nil {
		cfg = DefaultSessionConfig()
	}
	serverEnd, clientEnd := net.Pipe()
	e := newTestEngine()
	sess := NewSession(e, newTCPRecordConn(serverEnd, cfg), cfg, testLogger())
	go sess.Run(context.Background())
	t.Cleanup(func() {
		clientEnd.Close()
		sess.Close()
	})
	return clientEnd, e
}

func readServerMessage(t *testing.T, lr *protocol.LineReader) *protocol.ServerMessage {
	t.Helper()
	record, err := lr.ReadRecord()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	msg, err := protocol.DecodeServerMessage(record)
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return msg
}

func TestSessionLoginOverWire(t *testing.T) {
	client, _ := startPipeSession(t, nil)
	lr := protocol.NewLineReader(client)
	lw := protocol.NewLineWriter(client)

	if err := lw.WriteRecord([]byte(`{"kind":"login","name":"ada","role":"contributor","color":"red","symbol":"human"}`)); err != nil {
		t.Fatalf("write login: %v", err)
	}

	welcome := readServerMessage(t, lr)
	if welcome.Kind != protocol.KindWelcome {
		t.Fatalf("first record = %q, want welcome", welcome.Kind)
	}
	if welcome.ParticipantID == nil {
		t.Fatal("welcome missing participant id")
	}

	state := readServerMessage(t, lr)
	if state.Kind != protocol.KindState {
		t.Errorf("second record = %q, want state", state.Kind)
	}
}

func TestSessionMalformedRecordKeepsConnection(t *testing.T) {
	client, _ := startPipeSession(t, nil)
	lr := protocol.NewLineReader(client)
	lw := protocol.NewLineWriter(client)

	if err := lw.WriteRecord([]byte(`{not json`)); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	errEvent := readServerMessage(t, lr)
	if errEvent.Kind != protocol.KindError || errEvent.Code != protocol.CodeMalformed {
		t.Fatalf("got %+v, want malformed_message error", errEvent)
	}

	// The stream must still work after the dropped record.
	if err := lw.WriteRecord([]byte(`{"kind":"login","name":"ada","role":"observer","color":"blue","symbol":"ghost"}`)); err != nil {
		t.Fatalf("write login after garbage: %v", err)
	}
	welcome := readServerMessage(t, lr)
	if welcome.Kind != protocol.KindWelcome {
		t.Errorf("record after recovery = %q, want welcome", welcome.Kind)
	}
}

func TestSessionCommandBeforeLoginGetsError(t *testing.T) {
	client, e := startPipeSession(t, nil)
	lr := protocol.NewLineReader(client)
	lw := protocol.NewLineWriter(client)

	if err := lw.WriteRecord([]byte(`{"kind":"vote","value":5}`)); err != nil {
		t.Fatalf("write vote: %v", err)
	}

	errEvent := readServerMessage(t, lr)
	if errEvent.Kind != protocol.KindError || errEvent.Code != protocol.CodeNotLoggedIn {
		t.Errorf("got %+v, want not_logged_in error", errEvent)
	}
	if st := e.Status(); st.TotalPlayers != 0 || st.VotesCast != 0 {
		t.Errorf("anonymous vote changed state: %+v", st)
	}

	// The connection must survive the rejection.
	if err := lw.WriteRecord([]byte(`{"kind":"login","name":"ada","role":"contributor","color":"red","symbol":"human"}`)); err != nil {
		t.Fatalf("write login after rejection: %v", err)
	}
	if welcome := readServerMessage(t, lr); welcome.Kind != protocol.KindWelcome {
		t.Errorf("record after rejection = %q, want welcome", welcome.Kind)
	}
}

func TestSessionIdleViewerStaysConnected(t *testing.T) {
	client, e := startPipeSession(t, nil)
	lr := protocol.NewLineReader(client)
	lw := protocol.NewLineWriter(client)

	if err := lw.WriteRecord([]byte(`{"kind":"login","name":"ada","role":"observer","color":"blue","symbol":"ghost"}`)); err != nil {
		t.Fatalf("write login: %v", err)
	}
	readServerMessage(t, lr)
	readServerMessage(t, lr)

	// An observer sends nothing after login; with no read deadline the
	// session must outlive any idle stretch.
	time.Sleep(200 * time.Millisecond)
	if st := e.Status(); st.TotalPlayers != 1 {
		t.Fatalf("idle viewer removed: players = %d, want 1", st.TotalPlayers)
	}

	if err := lw.WriteRecord([]byte(`{"kind":"move","x":1,"y":2}`)); err != nil {
		t.Fatalf("write move after idling: %v", err)
	}
	if got := readServerMessage(t, lr); got.Kind != protocol.KindState {
		t.Errorf("reply after idling = %q, want state", got.Kind)
	}
}

func TestSessionReadTimeoutOptIn(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.ReadTimeout = 50 * time.Millisecond

	client, e := startPipeSession(t, cfg)
	lr := protocol.NewLineReader(client)
	lw := protocol.NewLineWriter(client)

	if err := lw.WriteRecord([]byte(`{"kind":"login","name":"ada","role":"contributor","color":"red","symbol":"human"}`)); err != nil {
		t.Fatalf("write login: %v", err)
	}
	readServerMessage(t, lr)
	readServerMessage(t, lr)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if e.Status().TotalPlayers == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("configured read deadline never fired on an idle connection")
}

func TestSessionDisconnectRemovesParticipant(t *testing.T) {
	client, e := startPipeSession(t, nil)
	lr := protocol.NewLineReader(client)
	lw := protocol.NewLineWriter(client)

	if err := lw.WriteRecord([]byte(`{"kind":"login","name":"ada","role":"contributor","color":"red","symbol":"human"}`)); err != nil {
		t.Fatalf("write login: %v", err)
	}
	readServerMessage(t, lr)
	readServerMessage(t, lr)

	client.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if e.Status().TotalPlayers == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("participant not removed after disconnect")
}

func TestSessionRateLimit(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.RateLimit = rate.Limit(1)
	cfg.RateBurst = 2

	client, _ := startPipeSession(t, cfg)
	lr := protocol.NewLineReader(client)
	lw := protocol.NewLineWriter(client)

	if err := lw.WriteRecord([]byte(`{"kind":"login","name":"ada","role":"contributor","color":"red","symbol":"human"}`)); err != nil {
		t.Fatalf("write login: %v", err)
	}
	readServerMessage(t, lr)
	readServerMessage(t, lr)

	if err := lw.WriteRecord([]byte(`{"kind":"move","x":3,"y":3}`)); err != nil {
		t.Fatalf("write move: %v", err)
	}
	if got := readServerMessage(t, lr); got.Kind != protocol.KindState {
		t.Fatalf("move reply = %q, want state", got.Kind)
	}

	if err := lw.WriteRecord([]byte(`{"kind":"move","x":4,"y":4}`)); err != nil {
		t.Fatalf("write second move: %v", err)
	}
	if got := readServerMessage(t, lr); got.Kind != protocol.KindError || got.Code != protocol.CodeRateLimited {
		t.Errorf("burst overflow reply = %+v, want rate_limited error", got)
	}
}

func TestSessionTrySendAfterClose(t *testing.T) {
	e := newTestEngine()
	sess := newTestSession(e)
	sess.Close()

	if sess.TrySend(protocol.NewError(protocol.CodeMalformed, "x")) {
		t.Error("TrySend succeeded on a closed session")
	}
	sess.Close() // must be idempotent
}
