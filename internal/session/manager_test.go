package session_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"GemChat/internal/attachment"
	"GemChat/internal/gemini"
	"GemChat/internal/history"
	"GemChat/internal/session"
)

// stubGateway is a scriptable session.Gateway
type stubGateway struct {
	mu      sync.Mutex
	calls   int
	reply   string
	err     error
	block   chan struct{} // when set, Generate waits for it
	started chan struct{} // when set, closed once Generate is entered
	lastReq *gemini.GenerateRequest
}

func (g *stubGateway) Generate(ctx context.Context, req *gemini.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.calls++
	g.lastReq = req
	started := g.started
	block := g.block
	g.mu.Unlock()

	if started != nil {
		close(started)
		g.mu.Lock()
		g.started = nil
		g.mu.Unlock()
	}
	if block != nil {
		<-block
	}
	return g.reply, g.err
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, gw session.Gateway) (*session.Manager, session.Store) {
	t.Helper()
	store, err := history.New(history.DriverMemory)
	if err != nil {
		t.Fatalf("history.New() error: %v", err)
	}
	return session.NewManager(gw, store, history.DefaultRecordID, testLogger()), store
}

func TestSendAppendsUserAndAssistantTurns(t *testing.T) {
	gw := &stubGateway{reply: "Hi there"}
	m, _ := newTestManager(t, gw)

	if !m.Send(context.Background(), "Hello", nil) {
		t.Fatal("Send() rejected a valid message")
	}

	turns := m.Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != session.RoleUser || turns[0].Content != "Hello" {
		t.Errorf("turn 0 = %+v, want user/Hello", turns[0])
	}
	if turns[1].Role != session.RoleAssistant || turns[1].Content != "Hi there" {
		t.Errorf("turn 1 = %+v, want assistant/Hi there", turns[1])
	}
	if turns[1].Timestamp.Before(turns[0].Timestamp) {
		t.Error("timestamps are not non-decreasing")
	}
	if m.Sending() {
		t.Error("manager still sending after completion")
	}
}

func TestSendEmptyIsNoOp(t *testing.T) {
	gw := &stubGateway{reply: "unused"}
	m, _ := newTestManager(t, gw)

	if m.Send(context.Background(), "", nil) {
		t.Error("Send(\"\", nil) accepted")
	}
	if m.Send(context.Background(), "   ", nil) {
		t.Error("whitespace-only Send accepted")
	}
	if len(m.Turns()) != 0 {
		t.Errorf("log mutated by empty send: %+v", m.Turns())
	}
	if gw.callCount() != 0 {
		t.Errorf("gateway called %d times for empty sends", gw.callCount())
	}
	if m.Sending() {
		t.Error("state changed from idle")
	}
}

func TestSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	gw := &stubGateway{reply: "done", block: release, started: started}
	m, _ := newTestManager(t, gw)

	first := make(chan bool)
	go func() {
		first <- m.Send(context.Background(), "first", nil)
	}()

	<-started // first exchange is now in flight

	if m.Send(context.Background(), "second", nil) {
		t.Error("overlapping Send accepted, want dropped")
	}
	if got := len(m.Turns()); got != 1 {
		t.Errorf("log has %d turns during flight, want only the first user turn", got)
	}

	close(release)
	if !<-first {
		t.Error("first Send rejected")
	}

	turns := m.Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2 (dropped send must not append)", len(turns))
	}
	if turns[0].Content != "first" {
		t.Errorf("user turn = %q, want %q", turns[0].Content, "first")
	}
	if gw.callCount() != 1 {
		t.Errorf("gateway called %d times, want 1", gw.callCount())
	}
}

func TestSequentialSendsDoubleTheLog(t *testing.T) {
	gw := &stubGateway{reply: "ack"}
	m, _ := newTestManager(t, gw)

	const n = 5
	for i := 0; i < n; i++ {
		if !m.Send(context.Background(), fmt.Sprintf("message %d", i), nil) {
			t.Fatalf("Send %d rejected", i)
		}
	}
	if got := len(m.Turns()); got != 2*n {
		t.Errorf("log length = %d after %d sends, want %d", got, n, 2*n)
	}
}

func TestSendFailureBecomesAssistantTurn(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantContent string
	}{
		{
			name:        "timeout gets a connectivity-specific message",
			err:         gemini.ErrTimeout,
			wantContent: "Sorry, I encountered an error: Request timeout. Please check your connection.",
		},
		{
			name:        "API error surfaces the server message",
			err:         &gemini.APIError{StatusCode: 429, Message: "quota exceeded"},
			wantContent: "Sorry, I encountered an error: quota exceeded",
		},
		{
			name:        "malformed response",
			err:         gemini.ErrMalformedResponse,
			wantContent: "Sorry, I encountered an error: unexpected response from the API",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &stubGateway{err: tt.err}
			m, _ := newTestManager(t, gw)

			if !m.Send(context.Background(), "Hello", nil) {
				t.Fatal("Send() rejected")
			}

			turns := m.Turns()
			if len(turns) != 2 {
				t.Fatalf("got %d turns, want 2", len(turns))
			}
			if turns[1].Role != session.RoleAssistant {
				t.Errorf("error turn role = %q", turns[1].Role)
			}
			if turns[1].Content != tt.wantContent {
				t.Errorf("error turn = %q, want %q", turns[1].Content, tt.wantContent)
			}
			if m.Sending() {
				t.Error("sending flag not released after failure")
			}

			// The session stays usable after a failed exchange.
			gw.mu.Lock()
			gw.err = nil
			gw.reply = "recovered"
			gw.mu.Unlock()
			if !m.Send(context.Background(), "again", nil) {
				t.Error("Send rejected after a failed exchange")
			}
		})
	}
}

func TestEncodingFailureAbortsBeforeGateway(t *testing.T) {
	gw := &stubGateway{reply: "unused"}
	m, _ := newTestManager(t, gw)

	broken := attachment.Attachment{Name: "broken.png", MIMEType: "image/png"}
	if !m.Send(context.Background(), "", []attachment.Attachment{broken}) {
		t.Fatal("Send() rejected")
	}

	if gw.callCount() != 0 {
		t.Errorf("gateway called %d times, want 0 for an encoding failure", gw.callCount())
	}
	turns := m.Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if !strings.Contains(turns[1].Content, "Sorry, I encountered an error:") {
		t.Errorf("error turn = %q", turns[1].Content)
	}
}

func TestPersistAndRestore(t *testing.T) {
	gw := &stubGateway{reply: "Hi there"}
	m, store := newTestManager(t, gw)

	att := attachment.Attachment{Name: "shot.png", MIMEType: "image/png", Data: []byte("png")}
	if !m.Send(context.Background(), "Hello", []attachment.Attachment{att}) {
		t.Fatal("Send() rejected")
	}

	// A fresh manager over the same store reproduces the log.
	restored := session.NewManager(gw, store, history.DefaultRecordID, testLogger())
	restored.Restore(context.Background())

	want := m.Turns()
	got := restored.Turns()
	if len(got) != len(want) {
		t.Fatalf("restored %d turns, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	// Attachment metadata survives, binary content does not.
	if len(got[0].Attachments) != 1 || got[0].Attachments[0].Name != "shot.png" {
		t.Errorf("restored attachments = %+v", got[0].Attachments)
	}

	if gw.callCount() != 1 {
		t.Errorf("Restore issued network calls: gateway called %d times", gw.callCount())
	}
}

func TestNewSessionClearsAndPersists(t *testing.T) {
	gw := &stubGateway{reply: "Hi"}
	m, store := newTestManager(t, gw)

	m.Send(context.Background(), "Hello", nil)
	m.NewSession(context.Background())

	if len(m.Turns()) != 0 {
		t.Errorf("log not cleared: %+v", m.Turns())
	}

	// The empty log is persisted immediately.
	fresh := session.NewManager(gw, store, history.DefaultRecordID, testLogger())
	fresh.Restore(context.Background())
	if len(fresh.Turns()) != 0 {
		t.Errorf("restore after NewSession yields %d turns, want 0", len(fresh.Turns()))
	}
}

func TestRestoreUnreadableRecordStartsEmpty(t *testing.T) {
	gw := &stubGateway{reply: "Hi"}
	m := session.NewManager(gw, failingStore{}, history.DefaultRecordID, testLogger())

	m.Restore(context.Background())
	if len(m.Turns()) != 0 {
		t.Errorf("log = %+v, want empty on unreadable record", m.Turns())
	}
}

func TestOnTurnListenersFireInAppendOrder(t *testing.T) {
	gw := &stubGateway{reply: "Hi there"}
	m, _ := newTestManager(t, gw)

	var mu sync.Mutex
	var seen []string
	m.OnTurn(func(turn session.Turn) {
		mu.Lock()
		seen = append(seen, turn.Role+":"+turn.Content)
		mu.Unlock()
	})

	m.Send(context.Background(), "Hello", nil)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"user:Hello", "assistant:Hi there"}
	if len(seen) != len(want) {
		t.Fatalf("listener saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

// failingStore always errors
type failingStore struct{}

func (failingStore) Save(ctx context.Context, rec *session.Record) error {
	return errors.New("disk on fire")
}

func (failingStore) Load(ctx context.Context, id string) (*session.Record, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) Close() error { return nil }

func TestSendSurvivesPersistFailure(t *testing.T) {
	gw := &stubGateway{reply: "Hi"}
	m := session.NewManager(gw, failingStore{}, history.DefaultRecordID, testLogger())

	if !m.Send(context.Background(), "Hello", nil) {
		t.Fatal("Send() rejected")
	}
	if len(m.Turns()) != 2 {
		t.Errorf("got %d turns, want 2 despite persist failure", len(m.Turns()))
	}
	if m.Sending() {
		t.Error("sending flag stuck after persist failure")
	}
}

func TestTimestampsNonDecreasingAcrossExchanges(t *testing.T) {
	gw := &stubGateway{reply: "ok"}
	m, _ := newTestManager(t, gw)

	for i := 0; i < 3; i++ {
		m.Send(context.Background(), "tick", nil)
		time.Sleep(time.Millisecond)
	}

	turns := m.Turns()
	for i := 1; i < len(turns); i++ {
		if turns[i].Timestamp.Before(turns[i-1].Timestamp) {
			t.Fatalf("timestamp order violated at turn %d", i)
		}
	}
}
