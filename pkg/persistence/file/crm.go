package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/scope"
)

// ContactRepository stores contacts as JSON documents under <root>/contacts.
type ContactRepository struct {
	root string
}

func (r *ContactRepository) dir() string {
	return filepath.Join(r.root, "contacts")
}

func (r *ContactRepository) GetByID(_ context.Context, sc scope.Context, id string) (*models.Contact, error) {
	var contact models.Contact

	if err := readJSON(r.dir(), id, &contact); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrContactNotFound
		}

		return nil, err
	}

	if !sc.CanAccess(contact.SubaccountID) {
		return nil, persistence.ErrScopeDenied
	}

	return &contact, nil
}

func (r *ContactRepository) Save(_ context.Context, sc scope.Context, contact *models.Contact) error {
	if !sc.CanAccess(contact.SubaccountID) {
		return persistence.ErrScopeDenied
	}

	contact.UpdatedAt = time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = contact.UpdatedAt
	}

	return writeJSON(r.dir(), contact.ID, contact)
}

// AddTag appends the tag if absent. Adding an existing tag is a no-op, so
// retried add_tag actions stay idempotent.
func (r *ContactRepository) AddTag(ctx context.Context, sc scope.Context, contactID, tag string) error {
	contact, err := r.GetByID(ctx, sc, contactID)
	if err != nil {
		return err
	}

	if contact.HasTag(tag) {
		return nil
	}

	contact.Tags = append(contact.Tags, tag)

	return r.Save(ctx, sc, contact)
}

// TemplateRepository stores email templates under <root>/templates.
type TemplateRepository struct {
	root string
}

func (r *TemplateRepository) dir() string {
	return filepath.Join(r.root, "templates")
}

func (r *TemplateRepository) GetByID(_ context.Context, sc scope.Context, id string) (*models.EmailTemplate, error) {
	var template models.EmailTemplate

	if err := readJSON(r.dir(), id, &template); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrTemplateNotFound
		}

		return nil, err
	}

	if !sc.CanAccess(template.SubaccountID) {
		return nil, persistence.ErrScopeDenied
	}

	return &template, nil
}

func (r *TemplateRepository) Save(_ context.Context, sc scope.Context, template *models.EmailTemplate) error {
	if !sc.CanAccess(template.SubaccountID) {
		return persistence.ErrScopeDenied
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}

	return writeJSON(r.dir(), template.ID, template)
}

// TaskRepository stores tasks under <root>/tasks.
type TaskRepository struct {
	root string
}

func (r *TaskRepository) dir() string {
	return filepath.Join(r.root, "tasks")
}

func (r *TaskRepository) Create(_ context.Context, sc scope.Context, task *models.Task) error {
	if !sc.CanAccess(task.SubaccountID) {
		return persistence.ErrScopeDenied
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	return writeJSON(r.dir(), task.ID, task)
}
