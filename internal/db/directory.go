package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/Guizzs26/go-user-sync/internal/models"
	"github.com/jackc/pgx/v5"
)

// Directory lookups run read-only against the host application's own user
// tables; this system never writes to them.

const userColumns = `id, username, email, firstname, lastname, idnumber, deleted <> 0, suspended <> 0`

func (s *Store) userBy(ctx context.Context, column string, value any) (*models.UserRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM mdl_user WHERE %s = $1`, userColumns, column)

	var user models.UserRecord
	err := s.pool.QueryRow(ctx, query, value).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.IDNumber,
		&user.Deleted,
		&user.Suspended,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("looking up user by %s: %w", column, err)
	}
	return &user, nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (*models.UserRecord, error) {
	return s.userBy(ctx, "id", id)
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.UserRecord, error) {
	return s.userBy(ctx, "username", username)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.UserRecord, error) {
	return s.userBy(ctx, "email", email)
}

// LoadProfileFields augments the record with the host's custom profile
// attributes, keyed by field shortname.
func (s *Store) LoadProfileFields(ctx context.Context, user *models.UserRecord) error {
	query := `
		SELECT f.shortname, d.data
		FROM mdl_user_info_data d
		JOIN mdl_user_info_field f ON f.id = d.fieldid
		WHERE d.userid = $1
	`

	rows, err := s.pool.Query(ctx, query, user.ID)
	if err != nil {
		return fmt.Errorf("loading profile fields for user %d: %w", user.ID, err)
	}
	defer rows.Close()

	profile := map[string]any{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("scanning profile field: %w", err)
		}
		profile[name] = value
	}
	if err := rows.Err(); err != nil {
		return err
	}

	user.Profile = profile
	return nil
}

// ActiveUserIDs lists users eligible for bulk sync: not deleted, not suspended
func (s *Store) ActiveUserIDs(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT id FROM mdl_user
		WHERE deleted = 0 AND suspended = 0
		ORDER BY id ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing active users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
