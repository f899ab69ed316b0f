package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"salesforecast/forecast"
)

const defaultRecentLimit = 50

// Journal records handled prediction requests in SQLite. It is diagnostic
// only; nothing reads it back on the predict path.
type Journal struct {
	database *sql.DB
}

// PredictionRecord is one journal row.
type PredictionRecord struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"request_id"`
	ProductName string    `json:"product_name,omitempty"`
	Payload     string    `json:"payload"`
	Prediction  []float64 `json:"prediction,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMS  float64   `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// OpenJournal opens (creating if needed) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT,
        product_name TEXT,
        payload TEXT NOT NULL,
        prediction TEXT,
        error_kind TEXT,
        error TEXT,
        duration_ms REAL DEFAULT 0,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{database: database}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.database == nil {
		return nil
	}
	return j.database.Close()
}

// Record implements forecast.Recorder.
func (j *Journal) Record(ctx context.Context, entry forecast.Entry) error {
	if j == nil || j.database == nil {
		return errors.New("journal not initialized")
	}
	var prediction sql.NullString
	if entry.Prediction != nil {
		encoded, err := json.Marshal(entry.Prediction)
		if err != nil {
			return err
		}
		prediction = sql.NullString{String: string(encoded), Valid: true}
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := j.database.ExecContext(ctx, `
        INSERT INTO predictions (
            request_id, product_name, payload, prediction, error_kind, error, duration_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `,
		entry.RequestID,
		entry.ProductName,
		string(entry.Payload),
		prediction,
		entry.ErrorKind,
		entry.Error,
		float64(entry.Duration)/float64(time.Millisecond),
		createdAt.UTC(),
	)
	return err
}

// Recent returns up to limit rows, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if j == nil || j.database == nil {
		return nil, errors.New("journal not initialized")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := j.database.QueryContext(ctx, `
        SELECT id, request_id, product_name, payload, prediction, error_kind, error, duration_ms, created_at
        FROM predictions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var r PredictionRecord
		var requestID, productName, prediction, errorKind, errorText sql.NullString
		if err := rows.Scan(&r.ID, &requestID, &productName, &r.Payload, &prediction,
			&errorKind, &errorText, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.RequestID = requestID.String
		r.ProductName = productName.String
		r.ErrorKind = errorKind.String
		r.Error = errorText.String
		if prediction.Valid && prediction.String != "" {
			if err := json.Unmarshal([]byte(prediction.String), &r.Prediction); err != nil {
				return nil, fmt.Errorf("decode prediction of row %d: %w", r.ID, err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
