package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoPending means the outbox row does not exist or was already sent.
var ErrNoPending = errors.New("outbox: no pending row")

// Repository reads and updates rows of the email outbox table.
type Repository struct {
	pool  *pgxpool.Pool
	table string
}

func NewRepository(pool *pgxpool.Pool, table string) *Repository {
	return &Repository{pool: pool, table: table}
}

// Pending returns the not-yet-sent outbox row as a JSON document. The zip
// attachment comes base64 encoded and its digest hex encoded, so the
// document survives the broker as plain text.
func (r *Repository) Pending(ctx context.Context, id string) ([]byte, error) {
	query := fmt.Sprintf(`
		SELECT row_to_json(t)
		FROM (
			SELECT
				"id",
				"to_address",
				"subject",
				"body_html",
				encode("zip_bytes", 'base64') AS zip_bytes,
				encode("zip_sha256", 'hex') AS zip_sha256
			FROM %s
			WHERE "id" = $1 AND "status" != 'sent'
		) t`, pgx.Identifier{r.table}.Sanitize())

	var doc []byte
	if err := r.pool.QueryRow(ctx, query, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPending
		}
		return nil, fmt.Errorf("select outbox row %s: %w", id, err)
	}
	return doc, nil
}

// MarkSent flips the row's status once the mail went out.
func (r *Repository) MarkSent(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET "status" = 'sent' WHERE "id" = $1`,
		pgx.Identifier{r.table}.Sanitize())
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark outbox row %s sent: %w", id, err)
	}
	return nil
}
