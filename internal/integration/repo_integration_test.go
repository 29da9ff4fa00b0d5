package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fishka_server/internal/domain"
	"fishka_server/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

func connectDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	applyMigrations(t, db)
	return db
}

func applyMigrations(t *testing.T, db *pgxpool.Pool) {
	t.Helper()
	migDir := filepath.Join("..", "..", "internal", "migrations")
	files, err := os.ReadDir(migDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(migDir, f.Name()))
		if err != nil {
			t.Fatalf("read file: %v", err)
		}
		if _, err := db.Exec(context.Background(), string(b)); err != nil {
			t.Fatalf("apply migration %s: %v", f.Name(), err)
		}
	}
}

func TestWordRepository_Random(t *testing.T) {
	db := connectDB(t)
	ctx := context.Background()

	seed := []string{"itest-alpha", "itest-beta", "itest-gamma"}
	for _, w := range seed {
		if _, err := db.Exec(ctx,
			`INSERT INTO words (text, language, difficulty) VALUES ($1, 'itest', 'easy')
			 ON CONFLICT (text, language) DO NOTHING`, w); err != nil {
			t.Fatalf("seed word: %v", err)
		}
	}
	t.Cleanup(func() {
		db.Exec(ctx, `DELETE FROM words WHERE language = 'itest'`)
	})

	repo := repository.NewWordRepository(db)

	w, err := repo.Random(ctx, "itest", "easy", nil)
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	if w.Language != "itest" || w.Difficulty != "easy" {
		t.Fatalf("wrong word bucket: %+v", w)
	}

	// excluding all but one forces the remaining word
	exclude := map[string]struct{}{"itest-alpha": {}, "itest-beta": {}}
	for i := 0; i < 5; i++ {
		w, err := repo.Random(ctx, "itest", "easy", exclude)
		if err != nil {
			t.Fatalf("random with exclusion: %v", err)
		}
		if w.Text != "itest-gamma" {
			t.Fatalf("expected itest-gamma, got %s", w.Text)
		}
	}

	if _, err := repo.Random(ctx, "itest", "nonexistent", nil); err != repository.ErrNoWords {
		t.Fatalf("expected ErrNoWords, got %v", err)
	}
}

func TestOutcomeRepository_CreateAndByRoom(t *testing.T) {
	db := connectDB(t)
	ctx := context.Background()

	repo := repository.NewOutcomeRepository(db)
	t.Cleanup(func() {
		db.Exec(ctx, `DELETE FROM room_outcomes WHERE room_code = 'IT27'`)
	})

	o := &domain.RoomOutcome{
		RoomCode:  "IT27",
		GameID:    "guessword",
		Players:   []string{"p1", "p2"},
		Reason:    "",
		Summary:   map[string]any{"scores": map[string]any{"p1": float64(3)}},
		StartedAt: time.Now().Add(-5 * time.Minute),
	}
	if err := repo.Create(ctx, o); err != nil {
		t.Fatalf("create outcome: %v", err)
	}
	if o.ID == 0 || o.FinishedAt.IsZero() {
		t.Fatalf("create did not backfill id/finished_at: %+v", o)
	}

	got, err := repo.ByRoom(ctx, "IT27", 10)
	if err != nil {
		t.Fatalf("by room: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(got))
	}
	if got[0].GameID != "guessword" || len(got[0].Players) != 2 {
		t.Fatalf("round trip mismatch: %+v", got[0])
	}
}
