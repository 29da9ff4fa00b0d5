package repository

import (
	"context"
	"encoding/json"
	"time"

	"fishka_server/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type OutcomeRepository struct {
	db *pgxpool.Pool
}

func NewOutcomeRepository(db *pgxpool.Pool) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

func (r *OutcomeRepository) Create(ctx context.Context, o *domain.RoomOutcome) error {
	playersJSON, err := json.Marshal(o.Players)
	if err != nil {
		return err
	}
	summaryJSON, err := json.Marshal(o.Summary)
	if err != nil {
		return err
	}

	var id int64
	var finishedAt time.Time
	err = r.db.QueryRow(ctx,
		`INSERT INTO room_outcomes (room_code, game_id, players, reason, summary, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, finished_at`,
		o.RoomCode,
		o.GameID,
		playersJSON,
		o.Reason,
		summaryJSON,
		o.StartedAt,
	).Scan(&id, &finishedAt)
	if err != nil {
		return err
	}

	o.ID = id
	o.FinishedAt = finishedAt
	return nil
}

func (r *OutcomeRepository) ByRoom(ctx context.Context, roomCode string, limit int) ([]*domain.RoomOutcome, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, room_code, game_id, players, reason, summary, started_at, finished_at
		 FROM room_outcomes
		 WHERE room_code = $1
		 ORDER BY finished_at DESC
		 LIMIT $2`,
		roomCode, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.RoomOutcome
	for rows.Next() {
		var (
			o            domain.RoomOutcome
			playersBytes []byte
			summaryBytes []byte
		)
		if err := rows.Scan(&o.ID, &o.RoomCode, &o.GameID, &playersBytes, &o.Reason, &summaryBytes, &o.StartedAt, &o.FinishedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(playersBytes, &o.Players)
		_ = json.Unmarshal(summaryBytes, &o.Summary)
		res = append(res, &o)
	}

	return res, rows.Err()
}
