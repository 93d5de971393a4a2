package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/scope"
)

// ContactRepository handles contact-related database operations.
type ContactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new contact repository.
func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) GetByID(ctx context.Context, sc scope.Context, id string) (*models.Contact, error) {
	query := `
		SELECT id, subaccount_id, first_name, last_name, email, phone, stage, tags, created_at, updated_at
		FROM contacts
		WHERE id = $1
	`

	var (
		contact  models.Contact
		email    sql.NullString
		phone    sql.NullString
		tagsJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&contact.ID, &contact.SubaccountID, &contact.FirstName, &contact.LastName,
		&email, &phone, &contact.Stage, &tagsJSON, &contact.CreatedAt, &contact.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrContactNotFound
		}

		return nil, fmt.Errorf("failed to query contact: %w", err)
	}

	contact.Email = email.String
	contact.Phone = phone.String

	if err := json.Unmarshal(tagsJSON, &contact.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}

	if !sc.CanAccess(contact.SubaccountID) {
		return nil, persistence.ErrScopeDenied
	}

	return &contact, nil
}

func (r *ContactRepository) Save(ctx context.Context, sc scope.Context, contact *models.Contact) error {
	if !sc.CanAccess(contact.SubaccountID) {
		return persistence.ErrScopeDenied
	}

	now := time.Now().UTC()

	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}

	contact.UpdatedAt = now

	if contact.Stage == "" {
		contact.Stage = models.LeadStageNew
	}

	tagsJSON, err := json.Marshal(contact.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO contacts (id, subaccount_id, first_name, last_name, email, phone, stage, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			stage = EXCLUDED.stage,
			tags = EXCLUDED.tags,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		contact.ID, contact.SubaccountID, contact.FirstName, contact.LastName,
		nullString(contact.Email), nullString(contact.Phone), contact.Stage, tagsJSON,
		contact.CreatedAt, contact.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}

	return nil
}

// AddTag appends the tag unless the contact already carries it, so retried
// add_tag actions stay idempotent.
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

// TemplateRepository handles email template database operations.
type TemplateRepository struct {
	db *sql.DB
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) GetByID(ctx context.Context, sc scope.Context, id string) (*models.EmailTemplate, error) {
	query := `
		SELECT id, subaccount_id, name, subject, body, created_at
		FROM email_templates
		WHERE id = $1
	`

	var template models.EmailTemplate

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&template.ID, &template.SubaccountID, &template.Name,
		&template.Subject, &template.Body, &template.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTemplateNotFound
		}

		return nil, fmt.Errorf("failed to query email template: %w", err)
	}

	if !sc.CanAccess(template.SubaccountID) {
		return nil, persistence.ErrScopeDenied
	}

	return &template, nil
}

func (r *TemplateRepository) Save(ctx context.Context, sc scope.Context, template *models.EmailTemplate) error {
	if !sc.CanAccess(template.SubaccountID) {
		return persistence.ErrScopeDenied
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO email_templates (id, subaccount_id, name, subject, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			subject = EXCLUDED.subject,
			body = EXCLUDED.body
	`

	_, err := r.db.ExecContext(ctx, query,
		template.ID, template.SubaccountID, template.Name,
		template.Subject, template.Body, template.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save email template: %w", err)
	}

	return nil
}

// TaskRepository handles task database operations.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, sc scope.Context, task *models.Task) error {
	if !sc.CanAccess(task.SubaccountID) {
		return persistence.ErrScopeDenied
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tasks (id, subaccount_id, contact_id, title, description, due_at, done, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.SubaccountID, nullString(task.ContactID), task.Title,
		task.Description, task.DueAt, task.Done, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}
