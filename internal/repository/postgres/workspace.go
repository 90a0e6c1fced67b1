package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/huddle/internal/models"
)

type WorkspaceStore struct {
	pool *pgxpool.Pool
}

func NewWorkspaceStore(pool *pgxpool.Pool) *WorkspaceStore {
	return &WorkspaceStore{pool: pool}
}

func (s *WorkspaceStore) Create(ctx context.Context, name string, createdBy uuid.UUID) (*models.Workspace, error) {
	var ws models.Workspace
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO workspaces (id, name, created_by, created_at)
			VALUES ($1, $2, $3, now())
			RETURNING id, name, created_by, created_at`,
			uuid.New(), name, createdBy,
		).Scan(&ws.ID, &ws.Name, &ws.CreatedBy, &ws.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert workspace: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO workspace_members (workspace_id, user_id)
			VALUES ($1, $2)`, ws.ID, createdBy); err != nil {
			return fmt.Errorf("insert workspace creator: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *WorkspaceStore) GetByID(ctx context.Context, workspaceID uuid.UUID) (*models.Workspace, error) {
	query := `
		SELECT id, name, created_by, created_at
		FROM workspaces
		WHERE id = $1`

	var ws models.Workspace
	err := s.pool.QueryRow(ctx, query, workspaceID).Scan(&ws.ID, &ws.Name, &ws.CreatedBy, &ws.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return &ws, nil
}

func (s *WorkspaceStore) AddMember(ctx context.Context, workspaceID, userID uuid.UUID) error {
	query := `
		INSERT INTO workspace_members (workspace_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id, user_id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, workspaceID, userID); err != nil {
		return fmt.Errorf("add workspace member: %w", err)
	}
	return nil
}

func (s *WorkspaceStore) IsMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM workspace_members
			WHERE workspace_id = $1 AND user_id = $2
		)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, workspaceID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check workspace membership: %w", err)
	}
	return exists, nil
}
