package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mameikagou/compoder/internal/models"
)

// ErrNotFound is returned when a component or codegen does not exist.
var ErrNotFound = errors.New("not found")

// ComponentStore persists component code records and their append-only
// version history.
type ComponentStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewComponentStore creates a new component store
func NewComponentStore(pool *pgxpool.Pool) *ComponentStore {
	return &ComponentStore{
		pool:   pool,
		tracer: otel.Tracer("component-store"),
	}
}

// CreateComponent creates a component with its first version in one
// transaction and returns the new component identity.
func (s *ComponentStore) CreateComponent(ctx context.Context, userID, codegenID uuid.UUID, name, description string, prompt []models.PromptPart, code string) (uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "component_store.create")
	defer span.End()
	span.SetAttributes(attribute.String("codegen.id", codegenID.String()))

	promptJSON, err := json.Marshal(prompt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal prompt: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var componentID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO component_codes (codegen_id, user_id, name, description)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		codegenID, userID, name, description,
	).Scan(&componentID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create component: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO component_versions (component_id, prompt, code)
		 VALUES ($1, $2, $3)`,
		componentID, promptJSON, code,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create first version: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	span.SetAttributes(attribute.String("component.id", componentID.String()))
	return componentID, nil
}

// AppendVersion appends one immutable version to an existing component and
// returns the new version count. The append is a plain INSERT, so concurrent
// appends to the same component never lose a version.
func (s *ComponentStore) AppendVersion(ctx context.Context, componentID uuid.UUID, prompt []models.PromptPart, code string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "component_store.append_version")
	defer span.End()
	span.SetAttributes(attribute.String("component.id", componentID.String()))

	promptJSON, err := json.Marshal(prompt)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal prompt: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Touching updated_at doubles as the existence check.
	tag, err := tx.Exec(ctx,
		`UPDATE component_codes SET updated_at = NOW() WHERE id = $1`,
		componentID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to touch component: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("component %s: %w", componentID, ErrNotFound)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO component_versions (component_id, prompt, code)
		 VALUES ($1, $2, $3)`,
		componentID, promptJSON, code,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append version: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM component_versions WHERE component_id = $1`,
		componentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count versions: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return count, nil
}

// GetComponent retrieves a component with its full version history, oldest
// version first.
func (s *ComponentStore) GetComponent(ctx context.Context, componentID, codegenID uuid.UUID) (*models.ComponentCode, error) {
	ctx, span := s.tracer.Start(ctx, "component_store.get")
	defer span.End()
	span.SetAttributes(attribute.String("component.id", componentID.String()))

	var component models.ComponentCode
	err := s.pool.QueryRow(ctx,
		`SELECT id, codegen_id, user_id, name, description, created_at, updated_at
		 FROM component_codes
		 WHERE id = $1 AND codegen_id = $2`,
		componentID, codegenID,
	).Scan(
		&component.ID,
		&component.CodegenID,
		&component.UserID,
		&component.Name,
		&component.Description,
		&component.CreatedAt,
		&component.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("component %s: %w", componentID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get component: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, prompt, code, created_at
		 FROM component_versions
		 WHERE component_id = $1
		 ORDER BY created_at ASC, id ASC`,
		componentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version models.Version
		var promptJSON []byte
		if err := rows.Scan(&version.ID, &promptJSON, &version.Code, &version.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		if len(promptJSON) > 0 {
			if err := json.Unmarshal(promptJSON, &version.Prompt); err != nil {
				return nil, fmt.Errorf("failed to decode version prompt: %w", err)
			}
		}
		component.Versions = append(component.Versions, version)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return &component, nil
}

// ListComponents returns a page of component summaries for a codegen,
// newest-updated first, optionally filtered by a case-insensitive substring
// match on name, description or both.
func (s *ComponentStore) ListComponents(ctx context.Context, codegenID uuid.UUID, page, pageSize int, searchKeyword, filterField string) ([]models.ComponentSummary, int, error) {
	ctx, span := s.tracer.Start(ctx, "component_store.list")
	defer span.End()
	span.SetAttributes(attribute.String("codegen.id", codegenID.String()))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	where := `codegen_id = $1`
	args := []interface{}{codegenID}
	if searchKeyword != "" {
		pattern := "%" + searchKeyword + "%"
		switch filterField {
		case "name":
			where += ` AND name ILIKE $2`
		case "description":
			where += ` AND description ILIKE $2`
		default:
			where += ` AND (name ILIKE $2 OR description ILIKE $2)`
		}
		args = append(args, pattern)
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM component_codes WHERE `+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count components: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(
		`SELECT c.id, c.name, c.description, c.updated_at,
		        COALESCE(v.code, '') AS latest_code
		 FROM component_codes c
		 LEFT JOIN LATERAL (
		     SELECT code FROM component_versions
		     WHERE component_id = c.id
		     ORDER BY created_at DESC, id DESC
		     LIMIT 1
		 ) v ON true
		 WHERE %s
		 ORDER BY c.updated_at DESC
		 LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, pageSize, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query components: %w", err)
	}
	defer rows.Close()

	var items []models.ComponentSummary
	for rows.Next() {
		var item models.ComponentSummary
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.UpdatedAt, &item.LatestVersionCode); err != nil {
			return nil, 0, fmt.Errorf("failed to scan component: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating components: %w", err)
	}

	return items, total, nil
}

// UpdateMetadata updates a component's name and/or description and returns
// the updated record without its version history.
func (s *ComponentStore) UpdateMetadata(ctx context.Context, componentID, codegenID uuid.UUID, name, description *string) (*models.ComponentCode, error) {
	ctx, span := s.tracer.Start(ctx, "component_store.update_metadata")
	defer span.End()
	span.SetAttributes(attribute.String("component.id", componentID.String()))

	var component models.ComponentCode
	err := s.pool.QueryRow(ctx,
		`UPDATE component_codes
		 SET name = COALESCE($3, name),
		     description = COALESCE($4, description),
		     updated_at = NOW()
		 WHERE id = $1 AND codegen_id = $2
		 RETURNING id, codegen_id, user_id, name, description, created_at, updated_at`,
		componentID, codegenID, name, description,
	).Scan(
		&component.ID,
		&component.CodegenID,
		&component.UserID,
		&component.Name,
		&component.Description,
		&component.CreatedAt,
		&component.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("component %s: %w", componentID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update component: %w", err)
	}

	return &component, nil
}

// DeleteComponent hard-deletes a component and, via cascade, its versions.
func (s *ComponentStore) DeleteComponent(ctx context.Context, componentID, codegenID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "component_store.delete")
	defer span.End()
	span.SetAttributes(attribute.String("component.id", componentID.String()))

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM component_codes WHERE id = $1 AND codegen_id = $2`,
		componentID, codegenID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete component: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("component %s: %w", componentID, ErrNotFound)
	}

	return nil
}
