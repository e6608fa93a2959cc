package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"relay/internal/jobs/models"
	"relay/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const recordColumns = `id, queue, job, status, response, responses, created_at, updated_at`

// Store implements the audit store on PostgreSQL. Multi-response appends are a
// single UPDATE so concurrent listeners never lose each other's entries.
type Store struct {
	pool  *pgxpool.Pool
	clock func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a PostgreSQL audit store.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the job_audits table and its indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate job_audits: %w", err)
	}
	return nil
}

// Create inserts rec, assigning ID and timestamps when unset.
func (s *Store) Create(ctx context.Context, rec *models.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	rec.UpdatedAt = rec.CreatedAt
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}

	query := `
		INSERT INTO job_audits (id, queue, job, status, responses, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '[]'::jsonb, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.Queue,
		[]byte(rec.Job),
		string(rec.Status),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("audit record %s: %w", rec.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// SetResponse overwrites the single response and status of a record.
func (s *Store) SetResponse(ctx context.Context, id string, status models.Status, resp models.Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	query := `
		UPDATE job_audits
		SET status = $2, response = $3, updated_at = $4
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, string(status), payload, s.clock())
	if err != nil {
		return fmt.Errorf("update audit record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

// AppendResponse appends resp and folds the status in one statement. The row
// lock taken by UPDATE serializes concurrent appends to the same record.
func (s *Store) AppendResponse(ctx context.Context, id string, incoming models.Status, resp models.Response) (*models.AuditRecord, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}

	query := `
		UPDATE job_audits
		SET responses = responses || jsonb_build_array($2::jsonb),
			status = CASE
				WHEN status = 'errored' OR $3::boolean THEN 'errored'
				ELSE $4::text
			END,
			updated_at = $5
		WHERE id = $1
		RETURNING ` + recordColumns
	row := s.pool.QueryRow(ctx, query, id, payload, resp.Failed(), string(incoming), s.clock())
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("append audit response: %w", err)
	}
	return rec, nil
}

// FindByID loads one record.
func (s *Store) FindByID(ctx context.Context, id string) (*models.AuditRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM job_audits WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find audit record: %w", err)
	}
	return rec, nil
}

// ListByStatus returns up to limit records in any of statuses, newest first.
// No statuses means every status; a limit <= 0 means no limit.
func (s *Store) ListByStatus(ctx context.Context, limit int, statuses ...models.Status) ([]*models.AuditRecord, error) {
	filter := make([]string, 0, len(statuses))
	for _, st := range statuses {
		filter = append(filter, string(st))
	}
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	query := `
		SELECT ` + recordColumns + `
		FROM job_audits
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, filter, limitArg)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*models.AuditRecord, error) {
	var (
		rec       models.AuditRecord
		id        uuid.UUID
		status    string
		job       []byte
		response  []byte
		responses []byte
	)
	if err := row.Scan(&id, &rec.Queue, &job, &status, &response, &responses, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.ID = id.String()
	rec.Status = models.Status(status)
	rec.Job = json.RawMessage(job)
	if len(response) > 0 {
		var resp models.Response
		if err := json.Unmarshal(response, &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		rec.Response = &resp
	}
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &rec.Responses); err != nil {
			return nil, fmt.Errorf("decode responses: %w", err)
		}
	}
	return &rec, nil
}
