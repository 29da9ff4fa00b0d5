package repository

import (
	"context"
	"errors"

	"fishka_server/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNoWords = errors.New("no words for language/difficulty")

const excludeRetries = 20

type WordRepository struct {
	db *pgxpool.Pool
}

func NewWordRepository(db *pgxpool.Pool) *WordRepository {
	return &WordRepository{db: db}
}

// Random returns a random word for the language/difficulty. Words in
// exclude are retried around a bounded number of times; when the
// retries run out the repository re-fetches without exclusion, so a
// previously used word can occasionally come back. Callers tolerate
// repeats.
func (r *WordRepository) Random(ctx context.Context, language, difficulty string, exclude map[string]struct{}) (*domain.Word, error) {
	for i := 0; i < excludeRetries; i++ {
		w, err := r.fetch(ctx, language, difficulty)
		if err != nil {
			return nil, err
		}
		if _, used := exclude[w.Text]; !used {
			return w, nil
		}
	}

	// fallback: accept whatever comes back
	return r.fetch(ctx, language, difficulty)
}

func (r *WordRepository) fetch(ctx context.Context, language, difficulty string) (*domain.Word, error) {
	var w domain.Word
	err := r.db.QueryRow(ctx,
		`SELECT id, text, language, difficulty
		 FROM words
		 WHERE language = $1 AND difficulty = $2
		 ORDER BY random()
		 LIMIT 1`,
		language, difficulty,
	).Scan(&w.ID, &w.Text, &w.Language, &w.Difficulty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoWords
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
