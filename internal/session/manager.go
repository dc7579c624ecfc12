package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"GemChat/internal/attachment"
	"GemChat/internal/gemini"
)

// Gateway performs one outbound generation exchange.
type Gateway interface {
	Generate(ctx context.Context, req *gemini.GenerateRequest) (string, error)
}

// Manager owns the in-memory turn log for one conversation. It enforces
// at-most-one in-flight exchange, appends user and assistant turns in
// call order, and persists the full log after every completed exchange.
type Manager struct {
	gateway  Gateway
	store    Store
	recordID string
	logger   *slog.Logger

	mu        sync.Mutex
	sending   bool
	turns     []Turn
	listeners []func(Turn)
}

// NewManager creates a session manager persisting under the given record
// ID (DefaultRecordID semantics are the caller's choice of key).
func NewManager(gateway Gateway, store Store, recordID string, logger *slog.Logger) *Manager {
	return &Manager{
		gateway:  gateway,
		store:    store,
		recordID: recordID,
		logger:   logger,
	}
}

// OnTurn registers a listener invoked after every appended turn, in
// append order. Register listeners before traffic starts.
func (m *Manager) OnTurn(fn func(Turn)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Turns returns a copy of the current turn log.
func (m *Manager) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Sending reports whether an exchange is currently in flight.
func (m *Manager) Sending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sending
}

// Send runs one exchange: append the user turn, call the gateway, append
// the assistant turn, persist. It returns false without touching the log
// when the input is empty or another exchange is already in flight; a
// concurrent send is dropped, never queued. Gateway and encoding failures
// are absorbed into an assistant error turn and never propagate.
func (m *Manager) Send(ctx context.Context, text string, atts []attachment.Attachment) bool {
	text = strings.TrimSpace(text)
	if text == "" && len(atts) == 0 {
		return false
	}

	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		m.logger.Info("send dropped, exchange already in flight")
		return false
	}
	m.sending = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.sending = false
		m.mu.Unlock()
	}()

	// The user turn is visible immediately, independent of the network outcome.
	m.append(Turn{
		Role:        RoleUser,
		Content:     text,
		Attachments: attachmentMeta(atts),
		Timestamp:   time.Now(),
	})

	reply, err := m.exchange(ctx, text, atts)
	if err != nil {
		m.logger.Error("exchange failed", "error", err)
		reply = errorMessage(err)
	}

	m.append(Turn{
		Role:      RoleAssistant,
		Content:   reply,
		Timestamp: time.Now(),
	})

	m.persist(ctx)
	return true
}

// NewSession clears the turn log and persists the empty record immediately.
func (m *Manager) NewSession(ctx context.Context) {
	m.mu.Lock()
	m.turns = nil
	m.mu.Unlock()

	m.persist(ctx)
	m.logger.Info("started new session")
}

// Restore replaces the in-memory log with the persisted record, in
// original order, without re-issuing any network calls. A missing or
// unreadable record leaves the log empty.
func (m *Manager) Restore(ctx context.Context) {
	rec, err := m.store.Load(ctx, m.recordID)
	if err != nil {
		m.logger.Warn("failed to load history, starting empty", "error", err)
		return
	}
	if rec == nil || len(rec.Turns) == 0 {
		return
	}

	m.mu.Lock()
	m.turns = make([]Turn, len(rec.Turns))
	copy(m.turns, rec.Turns)
	m.mu.Unlock()

	m.logger.Info("restored session", "turns", len(rec.Turns))
}

func (m *Manager) exchange(ctx context.Context, text string, atts []attachment.Attachment) (string, error) {
	req, err := gemini.BuildRequest(text, atts)
	if err != nil {
		return "", err
	}
	return m.gateway.Generate(ctx, req)
}

func (m *Manager) append(turn Turn) {
	m.mu.Lock()
	m.turns = append(m.turns, turn)
	listeners := make([]func(Turn), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(turn)
	}
}

func (m *Manager) persist(ctx context.Context) {
	rec := &Record{
		ID:      m.recordID,
		SavedAt: time.Now(),
		Turns:   m.Turns(),
	}
	if err := m.store.Save(ctx, rec); err != nil {
		m.logger.Error("failed to save history", "error", err)
		return
	}
	m.logger.Info("history saved", "record_id", rec.ID, "turns", len(rec.Turns))
}

func attachmentMeta(atts []attachment.Attachment) []AttachmentMeta {
	if len(atts) == 0 {
		return nil
	}
	meta := make([]AttachmentMeta, len(atts))
	for i, att := range atts {
		meta[i] = AttachmentMeta{Name: att.Name, MIMEType: att.MIMEType}
	}
	return meta
}

// errorMessage converts a failure into the user-facing assistant turn
// content. Timeouts get a connectivity-specific message, API failures
// surface the server message verbatim.
func errorMessage(err error) string {
	const prefix = "Sorry, I encountered an error: "

	var apiErr *gemini.APIError
	switch {
	case errors.Is(err, gemini.ErrTimeout):
		return prefix + "Request timeout. Please check your connection."
	case errors.As(err, &apiErr):
		return prefix + apiErr.Error()
	case errors.Is(err, gemini.ErrMalformedResponse):
		return prefix + "unexpected response from the API"
	case errors.Is(err, gemini.ErrEmptyRequest):
		return prefix + "nothing to send"
	case errors.Is(err, attachment.ErrEncoding):
		return prefix + err.Error()
	default:
		return prefix + err.Error()
	}
}
