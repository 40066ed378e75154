package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// sqliteBackendRepository is the sqlite-backed BackendRepository.
type sqliteBackendRepository struct {
	db *sql.DB
}

// NewBackendRepository returns a sqlite-backed BackendRepository.
func NewBackendRepository(db *sql.DB) BackendRepository {
	return &sqliteBackendRepository{db: db}
}

func (r *sqliteBackendRepository) List(ctx context.Context) ([]*models.Backend, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, base_url, api_key, request_timeout, target_model, supports_reasoning
		FROM registered_backends ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list registered backends: %w", err)
	}
	defer rows.Close()

	var out []*models.Backend
	for rows.Next() {
		var b models.Backend
		var timeout sql.NullInt64
		var target sql.NullString
		var reasoning int
		if err := rows.Scan(&b.Name, &b.BaseURL, &b.APIKey, &timeout, &target, &reasoning); err != nil {
			return nil, err
		}
		b.TimeoutSeconds = int(timeout.Int64)
		b.TargetModel = target.String
		b.SupportsReasoning = reasoning != 0
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (r *sqliteBackendRepository) Upsert(ctx context.Context, b *models.Backend) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO registered_backends (name, base_url, api_key, request_timeout, target_model, supports_reasoning)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			base_url = excluded.base_url,
			api_key = excluded.api_key,
			request_timeout = excluded.request_timeout,
			target_model = excluded.target_model,
			supports_reasoning = excluded.supports_reasoning
	`, b.Name, b.BaseURL, b.APIKey, b.TimeoutSeconds, b.TargetModel, boolToInt(b.SupportsReasoning))
	if err != nil {
		return fmt.Errorf("upsert registered backend: %w", err)
	}
	return nil
}

func (r *sqliteBackendRepository) Delete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM registered_backends WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete registered backend: %w", err)
	}
	return nil
}
