// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confira/confira/internal/platform/apperr"
)

// # Session Repository

// PostgresRepository implements the Repository interface using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// sessionColumns is the canonical column list shared by every SELECT.
const sessionColumns = `id, userid, tokenhash, ipaddress, useragent, devicename,
	location, issuspicious, suspicionreasons, createdat, expiresat, lastactivityat`

// scanSession hydrates one session row.
func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.IPAddress,
		&session.UserAgent,
		&session.DeviceName,
		&session.Location,
		&session.IsSuspicious,
		&session.SuspicionReasons,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastActivityAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

/*
Create persists a new session row into the iam.session table.

Description: Records a successful authentication in persistent storage.
Timestamps are initialized if not provided.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (repository *PostgresRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO iam.session (
			id, userid, tokenhash, ipaddress, useragent, devicename,
			location, issuspicious, suspicionreasons, createdat, expiresat, lastactivityat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = session.CreatedAt
	}

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.IPAddress,
		session.UserAgent,
		session.DeviceName,
		session.Location,
		session.IsSuspicious,
		session.SuspicionReasons,
		session.CreatedAt,
		session.ExpiresAt,
		session.LastActivityAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves a session row by its primary key.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Session: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM iam.session WHERE id = $1`

	session, err := scanSession(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_by_id_failed: %w", err)
	}

	return session, nil
}

/*
FindByTokenHash retrieves the unexpired session matching a refresh token hash.

Description: Securely resolves a refresh token hash into an active session.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM iam.session
		WHERE tokenhash = $1 AND expiresat > NOW()`

	session, err := scanSession(repository.pool.QueryRow(context, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_by_token_failed: %w", err)
	}

	return session, nil
}

/*
ListByUser returns a user's sessions ordered by last activity descending.

Parameters:
  - context: context.Context
  - userID: string
  - includeExpired: bool

Returns:
  - []*Session: Ordered slice
  - error: Database errors
*/
func (repository *PostgresRepository) ListByUser(context context.Context, userID string, includeExpired bool) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM iam.session WHERE userid = $1`
	if !includeExpired {
		query += ` AND expiresat > NOW()`
	}
	query += ` ORDER BY lastactivityat DESC`

	rows, err := repository.pool.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_failed: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_session_repo_list_scan_failed: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_rows_failed: %w", err)
	}

	return sessions, nil
}

/*
RotateToken replaces the refresh token hash and extends expiry in place.

Description: Refresh updates the existing session row; the session identifier
is never reused or reissued.

Parameters:
  - context: context.Context
  - sessionID: string
  - newTokenHash: string
  - expiresAt: time.Time

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) RotateToken(context context.Context, sessionID, newTokenHash string, expiresAt time.Time) error {
	const query = `
		UPDATE iam.session
		SET tokenhash = $2, expiresat = $3, lastactivityat = $4
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, sessionID, newTokenHash, expiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_session_repo_rotate_failed: %w", err)
	}
	return nil
}

/*
TouchActivity updates the session's last-activity timestamp.

Parameters:
  - context: context.Context
  - sessionID: string
  - at: time.Time

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) TouchActivity(context context.Context, sessionID string, at time.Time) error {
	const query = "UPDATE iam.session SET lastactivityat = $2 WHERE id = $1"
	_, err := repository.pool.Exec(context, query, sessionID, at)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_touch_failed: %w", err)
	}
	return nil
}

/*
Delete removes a session row permanently.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) Delete(context context.Context, sessionID string) error {
	const query = "DELETE FROM iam.session WHERE id = $1"
	_, err := repository.pool.Exec(context, query, sessionID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_delete_failed: %w", err)
	}
	return nil
}

/*
DeleteExpired permanently removes all sessions past their expiration.

Description: Cleanup task to reclaim storage from stale sessions.

Parameters:
  - context: context.Context

Returns:
  - int64: Number of rows removed
  - error: Cleanup failures
*/
func (repository *PostgresRepository) DeleteExpired(context context.Context) (int64, error) {
	const query = "DELETE FROM iam.session WHERE expiresat <= NOW()"
	tag, err := repository.pool.Exec(context, query)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

/*
Stats computes the aggregate session statistics for a user.

Description: Single-pass aggregation over the user's session rows. The device
and location breakdowns are folded in Go to keep the SQL portable.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *Stats: Aggregation result
  - error: Database errors
*/
func (repository *PostgresRepository) Stats(context context.Context, userID string) (*Stats, error) {
	const query = `
		SELECT devicename, location, issuspicious,
		       expiresat > NOW() AS isactive,
		       lastactivityat > NOW() - INTERVAL '24 hours' AS isrecent
		FROM iam.session
		WHERE userid = $1`

	rows, err := repository.pool.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_stats_failed: %w", err)
	}
	defer rows.Close()

	stats := &Stats{
		DeviceBreakdown:   make(map[string]int),
		LocationBreakdown: make(map[string]int),
	}

	for rows.Next() {
		var deviceName, location string
		var isSuspicious, isActive, isRecent bool

		if err := rows.Scan(&deviceName, &location, &isSuspicious, &isActive, &isRecent); err != nil {
			return nil, fmt.Errorf("postgres_session_repo_stats_scan_failed: %w", err)
		}

		stats.Total++
		if isActive {
			stats.Active++
		}
		if isSuspicious {
			stats.Suspicious++
		}
		if isRecent {
			stats.RecentActivityCount++
		}
		stats.DeviceBreakdown[deviceName]++
		stats.LocationBreakdown[location]++
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_session_repo_stats_rows_failed: %w", err)
	}

	return stats, nil
}

/*
CountByUser returns the total number of session rows for a user.

Parameters:
  - context: context.Context
  - userID: string
  - includeExpired: bool

Returns:
  - int: Row count
  - error: Database errors
*/
func (repository *PostgresRepository) CountByUser(context context.Context, userID string, includeExpired bool) (int, error) {
	query := "SELECT COUNT(*) FROM iam.session WHERE userid = $1"
	if !includeExpired {
		query += " AND expiresat > NOW()"
	}

	var total int
	if err := repository.pool.QueryRow(context, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres_session_repo_count_failed: %w", err)
	}
	return total, nil
}

/*
ListActivity returns a page of the user's sessions by last activity descending.

Parameters:
  - context: context.Context
  - userID: string
  - limit: int
  - offset: int

Returns:
  - []*Session: Ordered page
  - error: Database errors
*/
func (repository *PostgresRepository) ListActivity(context context.Context, userID string, limit, offset int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM iam.session
		WHERE userid = $1
		ORDER BY lastactivityat DESC
		LIMIT $2 OFFSET $3`

	rows, err := repository.pool.Query(context, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_activity_failed: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_session_repo_activity_scan_failed: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_session_repo_activity_rows_failed: %w", err)
	}

	return sessions, nil
}
