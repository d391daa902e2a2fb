package sqlite

import (
	"context"
	"errors"
	"strings"

	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/storage"
)

const userColumns = `id, username, email, role, password_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	query := `INSERT INTO users (username, email, password_hash, role) VALUES (?, ?, ?, ?) RETURNING ` + userColumns
	created, err := scanUser(s.db.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.Role))
	if err != nil {
		return models.User{}, translate(err)
	}
	return created, nil
}

// FindByID fetches a user by primary key.
func (s *Store) FindByID(ctx context.Context, id int64) (models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByUsername fetches a user by username.
func (s *Store) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *Store) findOne(ctx context.Context, query string, arg any) (models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return models.User{}, translate(err)
	}
	return user, nil
}

// UpdateProfile changes whichever of username and email are set.
func (s *Store) UpdateProfile(ctx context.Context, id int64, update models.ProfileUpdate) error {
	var sets []string
	var args []any
	if update.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *update.Username)
	}
	if update.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *update.Email)
	}
	if len(sets) == 0 {
		return errors.New("update profile: no fields")
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}

// UpdatePasswordHash replaces the stored password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.PasswordHash, timestamp{&user.CreatedAt}); err != nil {
		return models.User{}, err
	}
	return user, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireAffected(res rowsAffecter) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
