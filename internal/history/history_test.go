package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"GemChat/internal/session"
)

func testRecord(id string) *session.Record {
	return &session.Record{
		ID:      id,
		SavedAt: time.Now().UTC().Truncate(time.Second),
		Turns: []session.Turn{
			{Role: session.RoleUser, Content: "Hello", Timestamp: time.Now().UTC()},
			{
				Role:      session.RoleAssistant,
				Content:   "Hi there",
				Timestamp: time.Now().UTC(),
			},
			{
				Role:        session.RoleUser,
				Attachments: []session.AttachmentMeta{{Name: "shot.png", MIMEType: "image/png"}},
				Timestamp:   time.Now().UTC(),
			},
		},
	}
}

func TestNewInvalidDriver(t *testing.T) {
	_, err := New("etcd")
	if !errors.Is(err, ErrInvalidDriver) {
		t.Errorf("New(etcd) error = %v, want ErrInvalidDriver", err)
	}
}

func TestNewInvalidConfig(t *testing.T) {
	if _, err := New(DriverSQLite); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("sqlite without path: error = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(DriverRedis); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("redis without client: error = %v, want ErrInvalidConfig", err)
	}
}

func roundTrip(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()

	// Absent record is nil, not an error.
	rec, err := store.Load(ctx, "missing")
	if err != nil {
		t.Fatalf("Load(missing) error: %v", err)
	}
	if rec != nil {
		t.Fatalf("Load(missing) = %+v, want nil", rec)
	}

	saved := testRecord(DefaultRecordID)
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := store.Load(ctx, DefaultRecordID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got == nil {
		t.Fatal("Load() = nil after Save")
	}
	if len(got.Turns) != len(saved.Turns) {
		t.Fatalf("loaded %d turns, want %d", len(got.Turns), len(saved.Turns))
	}
	for i := range saved.Turns {
		if got.Turns[i].Role != saved.Turns[i].Role || got.Turns[i].Content != saved.Turns[i].Content {
			t.Errorf("turn %d = %+v, want %+v", i, got.Turns[i], saved.Turns[i])
		}
	}
	if len(got.Turns[2].Attachments) != 1 || got.Turns[2].Attachments[0].Name != "shot.png" {
		t.Errorf("attachment metadata lost: %+v", got.Turns[2].Attachments)
	}

	// Save replaces the prior record under the same ID.
	saved.Turns = nil
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("Save() replace error: %v", err)
	}
	got, err = store.Load(ctx, DefaultRecordID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got.Turns) != 0 {
		t.Errorf("replaced record still has %d turns", len(got.Turns))
	}
}

func TestMemoryStore(t *testing.T) {
	store, err := New(DriverMemory)
	if err != nil {
		t.Fatalf("New(memory) error: %v", err)
	}
	defer store.Close()

	roundTrip(t, store)
}

func TestMemoryStoreCopiesTurns(t *testing.T) {
	store, err := New(DriverMemory)
	if err != nil {
		t.Fatalf("New(memory) error: %v", err)
	}
	defer store.Close()

	rec := testRecord("copy-check")
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	rec.Turns[0].Content = "mutated after save"

	got, err := store.Load(context.Background(), "copy-check")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Turns[0].Content != "Hello" {
		t.Errorf("stored record shares memory with the caller: %q", got.Turns[0].Content)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := New(DriverSQLite, WithPath(filepath.Join(t.TempDir(), "history.db")))
	if err != nil {
		t.Fatalf("New(sqlite) error: %v", err)
	}
	defer store.Close()

	roundTrip(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := New(DriverSQLite, WithPath(path))
	if err != nil {
		t.Fatalf("New(sqlite) error: %v", err)
	}
	if err := store.Save(context.Background(), testRecord(DefaultRecordID)); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	store.Close()

	reopened, err := New(DriverSQLite, WithPath(path))
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(context.Background(), DefaultRecordID)
	if err != nil {
		t.Fatalf("Load() after reopen error: %v", err)
	}
	if got == nil || len(got.Turns) != 3 {
		t.Errorf("record did not survive reopen: %+v", got)
	}
}
