package postgres

import (
	"context"
	"strings"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/store"
)

const userColumns = `id, email, name, phone_number, is_staff, password_hash, created_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PhoneNumber, &u.IsStaff, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.TrimSpace(user.Email)
	if user.Email == "" {
		return nil, store.ErrInvalid
	}
	created, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, name, phone_number, is_staff, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		user.Email, user.Name, user.PhoneNumber, user.IsStaff, user.PasswordHash))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	updated, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users
		SET email = $2, name = $3, phone_number = $4, is_staff = $5
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, strings.TrimSpace(user.Email), user.Name, user.PhoneNumber, user.IsStaff))
	if err != nil {
		return nil, mapWriteError(notFound(err))
	}
	return updated, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DeleteUser relies on the schema's cascades: owned vendors are detached and
// the user's sent messages, replies and recipient entries go with it.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) ListStaffIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users WHERE is_staff ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0, 4)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
