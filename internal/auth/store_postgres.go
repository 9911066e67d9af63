// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

// # Storage Layer
//
// Repositories here are strictly separated from domain logic. They implement
// domain-defined interfaces (e.g., [UserRepository]) using the
// [pgxpool.Pool] connection manager. Storage-specific errors (like
// pgx.ErrNoRows) are mapped to domain-friendly [apperr.AppError] types to
// avoid leaking storage implementation details.

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confira/confira/internal/platform/apperr"
)

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `id, orgid, email, passwordhash, displayname, role, status,
	isonline, lastactiveat, createdat, updatedat`

// scanUser hydrates one account row.
func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.OrganizationID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Role,
		&user.Status,
		&user.IsOnline,
		&user.LastActiveAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

/*
Create persists a new user record into the iam.account table.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO iam.account (
			id, orgid, email, passwordhash, displayname, role, status,
			isonline, lastactiveat, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.LastActiveAt.IsZero() {
		user.LastActiveAt = now
	}

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.OrganizationID,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.Role,
		user.Status,
		user.IsOnline,
		user.LastActiveAt,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_user_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByEmail retrieves a user record by their unique email address.

Description: Performs a lookup on the account table, filtering out
soft-deleted users.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM iam.account
		WHERE email = $1 AND deletedat IS NULL`

	user, err := scanUser(repository.pool.QueryRow(context, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_email_failed: %w", err)
	}

	return user, nil
}

/*
FindByID retrieves a user record by their unique ID.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated account entity
  - error: Not found or execution errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM iam.account
		WHERE id = $1 AND deletedat IS NULL`

	user, err := scanUser(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_id_failed: %w", err)
	}

	return user, nil
}

/*
UpdateStatus transitions an account's lifecycle state.

Parameters:
  - context: context.Context
  - userID: string
  - status: UserStatus

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) UpdateStatus(context context.Context, userID string, status UserStatus) error {
	const query = "UPDATE iam.account SET status = $2, updatedat = $3 WHERE id = $1 AND deletedat IS NULL"
	_, err := repository.pool.Exec(context, query, userID, status, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_status_failed: %w", err)
	}
	return nil
}

/*
SetPresenceShadow updates the is_online / last_active_at shadow columns.

Description: Called by the Connection Manager on presence transitions. The
shadow is eventually consistent; the live connection set remains the truth.

Parameters:
  - context: context.Context
  - userID: string
  - isOnline: bool
  - lastActiveAt: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) SetPresenceShadow(context context.Context, userID string, isOnline bool, lastActiveAt time.Time) error {
	const query = "UPDATE iam.account SET isonline = $2, lastactiveat = $3 WHERE id = $1"
	_, err := repository.pool.Exec(context, query, userID, isOnline, lastActiveAt)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_presence_shadow_failed: %w", err)
	}
	return nil
}

// # Organization Repository

// PostgresOrganizationRepository implements OrganizationRepository using pgx.
type PostgresOrganizationRepository struct {
	pool *pgxpool.Pool
}

// NewOrganizationRepository creates a new PostgreSQL implementation of OrganizationRepository.
func NewOrganizationRepository(pool *pgxpool.Pool) *PostgresOrganizationRepository {
	return &PostgresOrganizationRepository{pool: pool}
}

/*
FindByID retrieves an organization by its unique ID.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Organization: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresOrganizationRepository) FindByID(context context.Context, id string) (*Organization, error) {
	const query = "SELECT id, name, createdat FROM iam.organization WHERE id = $1"

	organization := &Organization{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&organization.ID,
		&organization.Name,
		&organization.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Organization")
		}
		return nil, fmt.Errorf("postgres_org_repo_find_failed: %w", err)
	}

	return organization, nil
}

/*
CreateWithAdmin persists an organization and its first administrator together.

Description: Runs inside one transaction — either both rows are committed or
neither is. This is the only multi-row registration operation in the system.

Parameters:
  - context: context.Context
  - organization: *Organization
  - admin: *User

Returns:
  - error: Persistence failures (nothing is written on failure)
*/
func (repository *PostgresOrganizationRepository) CreateWithAdmin(context context.Context, organization *Organization, admin *User) error {

	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_org_repo_begin_failed: %w", err)
	}
	// Rollback is a no-op after a successful commit.
	defer func() { _ = transaction.Rollback(context) }()

	now := time.Now()
	if organization.CreatedAt.IsZero() {
		organization.CreatedAt = now
	}

	const organizationQuery = "INSERT INTO iam.organization (id, name, createdat) VALUES ($1, $2, $3)"
	if _, err := transaction.Exec(context, organizationQuery,
		organization.ID,
		organization.Name,
		organization.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres_org_repo_create_failed: %w", err)
	}

	admin.CreatedAt = now
	admin.UpdatedAt = now
	if admin.LastActiveAt.IsZero() {
		admin.LastActiveAt = now
	}

	const adminQuery = `
		INSERT INTO iam.account (
			id, orgid, email, passwordhash, displayname, role, status,
			isonline, lastactiveat, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if _, err := transaction.Exec(context, adminQuery,
		admin.ID,
		admin.OrganizationID,
		admin.Email,
		admin.PasswordHash,
		admin.DisplayName,
		admin.Role,
		admin.Status,
		admin.IsOnline,
		admin.LastActiveAt,
		admin.CreatedAt,
		admin.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres_org_repo_create_admin_failed: %w", err)
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_org_repo_commit_failed: %w", err)
	}

	return nil
}
