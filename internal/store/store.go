package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/opsmith/playbookpilot/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrInvalidTransition = errors.New("illegal task status transition")
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetTaskByQueueJob(ctx context.Context, jobID string) (*models.Task, error)
	ListTasks(ctx context.Context) ([]*models.Task, error)
	ListTasksByStatus(ctx context.Context, status string) ([]*models.Task, error)
	// TransitionTask performs an atomic compare-and-set status update. It
	// returns ErrInvalidTransition when the row exists but is not in the
	// expected from-status.
	TransitionTask(ctx context.Context, id uuid.UUID, from, to string, opts ...TaskUpdateOption) error
	SetTaskQueueJob(ctx context.Context, id uuid.UUID, jobID string) error
	DeleteTask(ctx context.Context, id uuid.UUID) error

	CreateTemplate(ctx context.Context, tpl *models.Template) error
	GetTemplate(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Template, error)
	GetTemplateByName(ctx context.Context, name string) (*models.Template, error)
	ListTemplates(ctx context.Context, includeDeleted bool) ([]*models.Template, error)
	UpdateTemplate(ctx context.Context, tpl *models.Template) error
	SoftDeleteTemplate(ctx context.Context, id uuid.UUID) error
}

type taskUpdateParams struct {
	Output *string
}

type TaskUpdateOption func(*taskUpdateParams)

// WithOutput attaches execution-engine output text to a status transition.
func WithOutput(output string) TaskUpdateOption {
	return func(p *taskUpdateParams) {
		p.Output = &output
	}
}
