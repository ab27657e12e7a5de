package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsmith/playbookpilot/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tasks ---

const taskColumns = `id, playbook_path, playbook_content, inventory, run_time, is_generated,
	 safety_validated, generation_meta, status, queue_job_id, execution_output, created_at, updated_at`

func (s *PostgresStore) CreateTask(ctx context.Context, task *models.Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, playbook_path, playbook_content, inventory, run_time, is_generated,
		 safety_validated, generation_meta, status, queue_job_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		task.ID, task.PlaybookPath, task.PlaybookContent, task.Inventory, task.RunTime,
		task.IsGenerated, task.SafetyValidated, task.GenerationMeta, task.Status,
		task.QueueJobID, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (s *PostgresStore) GetTaskByQueueJob(ctx context.Context, jobID string) (*models.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE queue_job_id = $1`, jobID)
	return scanTask(row)
}

func (s *PostgresStore) ListTasks(ctx context.Context) ([]*models.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *PostgresStore) ListTasksByStatus(ctx context.Context, status string) ([]*models.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = $1 ORDER BY run_time ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// TransitionTask is a compare-and-set update: the row moves from -> to only if
// it is still in the from-status, so concurrent transitions never interleave.
func (s *PostgresStore) TransitionTask(ctx context.Context, id uuid.UUID, from, to string, opts ...TaskUpdateOption) error {
	var params taskUpdateParams
	for _, opt := range opts {
		opt(&params)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $3, execution_output = COALESCE($4, execution_output), updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		id, from, to, params.Output)
	if err != nil {
		return fmt.Errorf("transition task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetTask(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *PostgresStore) SetTaskQueueJob(ctx context.Context, id uuid.UUID, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET queue_job_id = $2, updated_at = NOW() WHERE id = $1`, id, jobID)
	if err != nil {
		return fmt.Errorf("set task queue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Templates ---

const templateColumns = `id, name, description, content, schema, deleted_at, created_at, updated_at`

func (s *PostgresStore) CreateTemplate(ctx context.Context, tpl *models.Template) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO templates (id, name, description, content, schema, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tpl.ID, tpl.Name, tpl.Description, tpl.Content, tpl.Schema, tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	row := s.pool.QueryRow(ctx, query, id)
	return scanTemplate(row)
}

func (s *PostgresStore) GetTemplateByName(ctx context.Context, name string) (*models.Template, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE name = $1 AND deleted_at IS NULL`, name)
	return scanTemplate(row)
}

func (s *PostgresStore) ListTemplates(ctx context.Context, includeDeleted bool) ([]*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func (s *PostgresStore) UpdateTemplate(ctx context.Context, tpl *models.Template) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE templates SET name = $2, description = $3, content = $4, schema = $5, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`,
		tpl.ID, tpl.Name, tpl.Description, tpl.Content, tpl.Schema)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteTemplate flags the row as deleted. Rows are never purged so the
// audit history of past renders stays intact.
func (s *PostgresStore) SoftDeleteTemplate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE templates SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.PlaybookPath, &t.PlaybookContent, &t.Inventory, &t.RunTime,
		&t.IsGenerated, &t.SafetyValidated, &t.GenerationMeta, &t.Status,
		&t.QueueJobID, &t.ExecutionOutput, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var tpl models.Template
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.Content, &tpl.Schema,
		&tpl.DeletedAt, &tpl.CreatedAt, &tpl.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return &tpl, nil
}

func collectTasks(rows pgx.Rows) ([]*models.Task, error) {
	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
