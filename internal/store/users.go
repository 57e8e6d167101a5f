package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/GisSunTech/mini-shop-full/internal/models"
)

// ErrEmailTaken reports an insert that lost the race against the UNIQUE
// constraint on users.email.
var ErrEmailTaken = errors.New("store: email already registered")

// GetUserByEmail looks a user up by (already normalized) email.
// Returns (nil, nil) when no such user exists.
func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	query := `SELECT id, email, password_hash, is_admin FROM users WHERE email = ?`
	row := s.DB.QueryRow(query, email)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsAdmin); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(id int) (*models.User, error) {
	query := `SELECT id, email, password_hash, is_admin FROM users WHERE id = ?`
	row := s.DB.QueryRow(query, id)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsAdmin); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser persists a user and returns its id. Also used to seed the
// bootstrap admin.
func (s *Store) CreateUser(email, passwordHash string, isAdmin bool) (int, error) {
	query := `INSERT INTO users (email, password_hash, is_admin) VALUES (?, ?, ?)`
	res, err := s.DB.Exec(query, email, passwordHash, isAdmin)
	if err != nil {
		// The pure-Go sqlite driver has no typed constraint error; match the
		// message it renders for the users.email UNIQUE violation.
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return 0, fmt.Errorf("%w: %s", ErrEmailTaken, email)
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}
