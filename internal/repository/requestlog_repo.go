package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// sqliteRequestLogRepository is the sqlite-backed RequestLogRepository.
type sqliteRequestLogRepository struct {
	db *sql.DB
}

// NewRequestLogRepository returns a sqlite-backed RequestLogRepository.
func NewRequestLogRepository(db *sql.DB) RequestLogRepository {
	return &sqliteRequestLogRepository{db: db}
}

func (r *sqliteRequestLogRepository) Insert(ctx context.Context, entry *models.RequestLogEntry) error {
	route, err := json.Marshal(entry.Route)
	if err != nil {
		return fmt.Errorf("marshal route: %w", err)
	}
	attempts, err := json.Marshal(entry.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO request_logs (
			request_id, request_time, model_name, is_stream, path, method, query,
			route, backend_attempts, stream_chunks, outcome, error_message,
			duration_ms, stop_reason, full_response, is_tool_call, conversation_turn,
			usage_prompt_tokens, usage_completion_tokens, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.RequestID, entry.CreatedAt, entry.ModelName, boolToInt(entry.IsStream),
		entry.Path, entry.Method, entry.Query, string(route), string(attempts),
		entry.StreamChunks, string(entry.Outcome), entry.ErrorMessage, entry.DurationMs,
		entry.StopReason, entry.FullResponse, boolToInt(entry.IsToolCall), entry.ConversationTurn,
		entry.UsagePrompt, entry.UsageCompletion, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

func (r *sqliteRequestLogRepository) GetByRequestID(ctx context.Context, requestID string) (*models.RequestLog, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, request_id, request_time, model_name, is_stream, path, method, query,
			route, backend_attempts, stream_chunks, outcome, error_message, duration_ms,
			stop_reason, full_response, is_tool_call, conversation_turn,
			usage_prompt_tokens, usage_completion_tokens, created_at
		FROM request_logs WHERE request_id = ?
	`, requestID)
	log, err := scanRequestLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return log, err
}

func (r *sqliteRequestLogRepository) List(ctx context.Context, limit, offset int) ([]*models.RequestLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, request_time, model_name, is_stream, path, method, query,
			route, backend_attempts, stream_chunks, outcome, error_message, duration_ms,
			stop_reason, full_response, is_tool_call, conversation_turn,
			usage_prompt_tokens, usage_completion_tokens, created_at
		FROM request_logs ORDER BY id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list request logs: %w", err)
	}
	defer rows.Close()

	var out []*models.RequestLog
	for rows.Next() {
		log, err := scanRequestLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequestLog(row rowScanner) (*models.RequestLog, error) {
	var (
		l              models.RequestLog
		isStream       int
		isToolCall     int
		route          string
		attempts       string
		stopReason     sql.NullString
		fullResponse   sql.NullString
		convTurn       sql.NullInt64
		usagePrompt    sql.NullInt64
		usageCompl     sql.NullInt64
		errorMessage   sql.NullString
		streamChunks   sql.NullInt64
		durationMs     sql.NullFloat64
	)
	err := row.Scan(
		&l.ID, &l.RequestID, &l.CreatedAt, &l.ModelName, &isStream, &l.Path, &l.Method, &l.Query,
		&route, &attempts, &streamChunks, &l.Outcome, &errorMessage, &durationMs,
		&stopReason, &fullResponse, &isToolCall, &convTurn,
		&usagePrompt, &usageCompl, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.IsStream = isStream != 0
	l.IsToolCall = isToolCall != 0
	l.ErrorMessage = errorMessage.String
	l.StreamChunks = int(streamChunks.Int64)
	l.DurationMs = durationMs.Float64
	l.StopReason = stopReason.String
	l.FullResponse = fullResponse.String
	l.ConversationTurn = int(convTurn.Int64)
	l.UsagePrompt = int(usagePrompt.Int64)
	l.UsageCompletion = int(usageCompl.Int64)
	_ = json.Unmarshal([]byte(route), &l.Route)
	_ = json.Unmarshal([]byte(attempts), &l.Attempts)
	return &l, nil
}
