package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"boldestate-backend/internal/models"
)

type ExchangeRepo struct {
	pool *pgxpool.Pool
}

func NewExchangeRepo(pool *pgxpool.Pool) *ExchangeRepo {
	return &ExchangeRepo{pool: pool}
}

// Create inserts e. Re-delivered exchanges keep their id and are ignored.
func (r *ExchangeRepo) Create(ctx context.Context, e *models.Exchange) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	query := `INSERT INTO assistant_exchanges
		(id, conversation_id, variant, user_text, reply, outcome, error_message, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.ConversationID, e.Variant, e.UserText, e.Reply,
		e.Outcome, e.ErrorMessage, e.LatencyMS, e.CreatedAt,
	)
	return err
}
