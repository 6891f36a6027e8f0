package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"codearena/internal/common/db"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
	ErrDuplicate      = errors.New("duplicate record")
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserRepository interface {
	Create(ctx context.Context, tx db.Transaction, user *User) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error)
	GetByEmail(ctx context.Context, tx db.Transaction, email string) (*User, error)
	Delete(ctx context.Context, tx db.Transaction, id int64) error
}

type MySQLUserRepository struct {
	db db.Database
}

func NewUserRepository(database db.Database) UserRepository {
	return &MySQLUserRepository{db: database}
}

const userColumns = "id, username, email, password_hash, role, created_at, updated_at"

func (r *MySQLUserRepository) Create(ctx context.Context, tx db.Transaction, user *User) (int64, error) {
	if user == nil {
		return 0, errors.New("user is nil")
	}

	role := user.Role
	if role == "" {
		role = UserRoleUser
	}

	query := "INSERT INTO user (username, email, password_hash, role) VALUES (?, ?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, user.Username, user.Email, user.PasswordHash, role)
	if err != nil {
		if key, ok := db.UniqueViolation(err); ok {
			normalized := strings.ToLower(key)
			switch {
			case strings.Contains(normalized, "username"):
				return 0, ErrUsernameExists
			case strings.Contains(normalized, "email"):
				return 0, ErrEmailExists
			default:
				return 0, ErrDuplicate
			}
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	user.ID = id
	return id, nil
}

func (r *MySQLUserRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error) {
	query := "SELECT " + userColumns + " FROM user WHERE id = ? LIMIT 1"
	return r.scanOne(db.GetQuerier(r.db, tx).QueryRow(ctx, query, id))
}

func (r *MySQLUserRepository) GetByEmail(ctx context.Context, tx db.Transaction, email string) (*User, error) {
	query := "SELECT " + userColumns + " FROM user WHERE email = ? LIMIT 1"
	return r.scanOne(db.GetQuerier(r.db, tx).QueryRow(ctx, query, email))
}

func (r *MySQLUserRepository) Delete(ctx context.Context, tx db.Transaction, id int64) error {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM user WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MySQLUserRepository) scanOne(row db.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
