package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// sqliteResponseStateRepository is the sqlite-backed ResponseStateRepository.
type sqliteResponseStateRepository struct {
	db *sql.DB
}

// NewResponseStateRepository returns a sqlite-backed ResponseStateRepository.
func NewResponseStateRepository(db *sql.DB) ResponseStateRepository {
	return &sqliteResponseStateRepository{db: db}
}

func (r *sqliteResponseStateRepository) Get(ctx context.Context, id string) (*models.ResponseStateRecord, error) {
	var (
		rec        models.ResponseStateRecord
		prevID     sql.NullString
		inputItems string
		respObj    string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, previous_response_id, model, status, input_items, response_object, created_at
		FROM response_states WHERE id = ?
	`, id).Scan(&rec.ID, &prevID, &rec.Model, &rec.Status, &inputItems, &respObj, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get response state: %w", err)
	}
	if prevID.Valid {
		rec.PreviousResponseID = &prevID.String
	}
	if err := json.Unmarshal([]byte(inputItems), &rec.InputItems); err != nil {
		return nil, fmt.Errorf("unmarshal input_items: %w", err)
	}
	var obj models.ResponseObject
	if err := json.Unmarshal([]byte(respObj), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal response_object: %w", err)
	}
	rec.Response = &obj
	return &rec, nil
}

func (r *sqliteResponseStateRepository) Put(ctx context.Context, rec *models.ResponseStateRecord) error {
	inputItems, err := json.Marshal(rec.InputItems)
	if err != nil {
		return fmt.Errorf("marshal input_items: %w", err)
	}
	respObj, err := json.Marshal(rec.Response)
	if err != nil {
		return fmt.Errorf("marshal response_object: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO response_states (id, previous_response_id, model, status, input_items, response_object, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			input_items = excluded.input_items,
			response_object = excluded.response_object
	`, rec.ID, rec.PreviousResponseID, rec.Model, rec.Status, string(inputItems), string(respObj), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("put response state: %w", err)
	}
	return nil
}
