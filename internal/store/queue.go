package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/fieldsync/internal/mutation"
)

const mutationColumns = `id, url, method, body, timestamp, retry_count, status, error, temp_id, idempotency_key`

// InsertMutation appends a record to the queue and returns its assigned id.
// The record's ID field is ignored; the store assigns the next id.
func (s *Store) InsertMutation(ctx context.Context, rec mutation.Record) (int64, error) {
	status := rec.Status
	if status == "" {
		status = mutation.StatusPending
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO mutation_queue
		(url, method, body, timestamp, retry_count, status, error, temp_id, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.URL,
		string(rec.Method),
		nullableBody(rec.Body),
		rec.Timestamp,
		rec.RetryCount,
		string(status),
		nullableString(rec.Error),
		rec.TempID,
		rec.IdempotencyKey,
	)
	if err != nil {
		return 0, fmt.Errorf("insert mutation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert mutation: last insert id: %w", err)
	}
	return id, nil
}

// GetMutation retrieves a single record by id.
// Returns mutation.ErrNotFound if the record does not exist.
func (s *Store) GetMutation(ctx context.Context, id int64) (mutation.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mutationColumns+`
		FROM mutation_queue
		WHERE id = ?
	`, id)

	rec, err := scanMutation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return mutation.Record{}, fmt.Errorf("get mutation %d: %w", id, mutation.ErrNotFound)
	}
	if err != nil {
		return mutation.Record{}, fmt.Errorf("get mutation %d: %w", id, err)
	}
	return rec, nil
}

// DeleteMutation removes a record. Deleting a missing id is not an error.
func (s *Store) DeleteMutation(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mutation_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete mutation %d: %w", id, err)
	}
	return nil
}

// ListMutations returns every record with the given status, ordered by
// ascending id. Returns an empty slice (not nil) when there are none.
func (s *Store) ListMutations(ctx context.Context, status mutation.Status) ([]mutation.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mutationColumns+`
		FROM mutation_queue
		WHERE status = ?
		ORDER BY id ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	records := []mutation.Record{}
	for rows.Next() {
		rec, err := scanMutation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}

	return records, nil
}

// UpdateMutationTarget rewrites the url and body of a record in place.
// Only dependency resolution calls this. A missing id is a no-op.
func (s *Store) UpdateMutationTarget(ctx context.Context, id int64, url string, body json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mutation_queue
		SET url = ?, body = ?
		WHERE id = ?
	`, url, nullableBody(body), id)
	if err != nil {
		return fmt.Errorf("update mutation %d: %w", id, err)
	}
	return nil
}

// CountMutations returns the number of records per status.
// Statuses with no records are absent from the map.
func (s *Store) CountMutations(ctx context.Context) (map[mutation.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM mutation_queue
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count mutations: %w", err)
	}
	defer rows.Close()

	counts := make(map[mutation.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[mutation.Status(status)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}

	return counts, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMutation(row rowScanner) (mutation.Record, error) {
	var rec mutation.Record
	var method, status string
	var body, errMsg sql.NullString
	var tempID sql.NullInt64

	if err := row.Scan(
		&rec.ID, &rec.URL, &method, &body, &rec.Timestamp,
		&rec.RetryCount, &status, &errMsg, &tempID, &rec.IdempotencyKey,
	); err != nil {
		return mutation.Record{}, err
	}

	rec.Method = mutation.Method(method)
	rec.Status = mutation.Status(status)
	if body.Valid {
		rec.Body = json.RawMessage(body.String)
	}
	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	if tempID.Valid {
		v := tempID.Int64
		rec.TempID = &v
	}

	return rec, nil
}

// nullableBody stores an absent payload as NULL rather than an empty string.
func nullableBody(body json.RawMessage) any {
	if len(body) == 0 {
		return nil
	}
	return string(body)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
