// Package users manages the accounts table. Passwords are stored as bcrypt
// hashes and never leave this package.
package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/kdsmith18542/clickfit/database"
)

var (
	ErrNotFound       = errors.New("users: user not found")
	ErrDuplicateEmail = errors.New("users: email already exists")

	ErrMissingFields = errors.New("users: email and password are required")
	ErrInvalidEmail  = errors.New("users: invalid email format")
	ErrShortPassword = errors.New("users: password must be at least 6 characters")
)

const (
	TypeAdmin = "admin"
	TypeUser  = "user"

	MinPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// User is an account as returned by the API.
type User struct {
	ID        int64     `json:"userId"`
	Email     string    `json:"email"`
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewUser is the input of Create.
type NewUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Type     string `json:"type"`
}

// Validate checks required fields, email format and password length.
func (n NewUser) Validate() error {
	if strings.TrimSpace(n.Email) == "" || n.Password == "" {
		return ErrMissingFields
	}
	if !emailPattern.MatchString(strings.TrimSpace(n.Email)) {
		return ErrInvalidEmail
	}
	if len(n.Password) < MinPasswordLength {
		return ErrShortPassword
	}
	return nil
}

// IsValidationError reports whether err came from NewUser.Validate.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingFields) || errors.Is(err, ErrInvalidEmail) || errors.Is(err, ErrShortPassword)
}

// Store reads and writes users.
type Store struct {
	db   *database.DB
	cost int
	now  func() time.Time
}

// NewStore creates a store over db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, cost: bcrypt.DefaultCost, now: time.Now}
}

// SetHashCost overrides the bcrypt cost.
func (s *Store) SetHashCost(cost int) {
	s.cost = cost
}

const selectColumns = "SELECT userId, email, type, active, createdAt, updatedAt FROM users"

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Type, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// List returns every user, newest first.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY createdAt DESC, userId DESC")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to query users")
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to scan user")
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read users")
	}
	return users, nil
}

// Get returns the user with id.
func (s *Store) Get(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(selectColumns+" WHERE userId = ?"), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, pkgerrors.Wrapf(err, "failed to fetch user %d", id)
	}
	return u, nil
}

// Create validates n, hashes the password and inserts the user. Any type
// other than "admin" is stored as "user".
func (s *Store) Create(ctx context.Context, n NewUser) (int64, error) {
	if err := n.Validate(); err != nil {
		return 0, err
	}
	userType := TypeUser
	if n.Type == TypeAdmin {
		userType = TypeAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(n.Password), s.cost)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to hash password")
	}

	now := s.now().UTC()
	query := "INSERT INTO users (email, password, type, active, createdAt, updatedAt) VALUES (?, ?, ?, ?, ?, ?)"
	args := []any{strings.TrimSpace(n.Email), string(hash), userType, true, now, now}

	var id int64
	if s.db.Driver() == database.DriverPostgres {
		err = s.db.QueryRowContext(ctx, s.db.Rebind(query+" RETURNING userId"), args...).Scan(&id)
	} else {
		var res sql.Result
		if res, err = s.db.ExecContext(ctx, query, args...); err == nil {
			id, err = res.LastInsertId()
		}
	}
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, pkgerrors.Wrap(err, "failed to insert user")
	}
	return id, nil
}

// Toggle flips the active flag of the user with id.
func (s *Store) Toggle(ctx context.Context, id int64) error {
	return s.exec(ctx, "UPDATE users SET active = NOT active, updatedAt = ? WHERE userId = ?", s.now().UTC(), id)
}

// Delete removes the user with id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.exec(ctx, "DELETE FROM users WHERE userId = ?", id)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to update users")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
