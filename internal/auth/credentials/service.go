package credentials

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"horizon-web/internal/auth"
	"horizon-web/internal/db"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("credentials already exist")
	ErrInvalidEmail       = errors.New("invalid email")
)

type Service struct {
	db *db.DB
}

func NewService(db *db.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Register(
	ctx context.Context,
	email string,
	password string,
	name string,
) (auth.Identity, error) {

	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return auth.Identity{}, ErrInvalidEmail
	}

	// Hash first so a weak password never creates a user row
	hash, version, err := HashPassword(password)
	if err != nil {
		return auth.Identity{}, err
	}

	var (
		userID    uuid.UUID
		userName  string
		createdAt time.Time
	)

	// 1. Find or create user by email
	err = s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&userID, &userName, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO users (email, email_verified, name)
			VALUES ($1, false, $2)
			RETURNING id, name, created_at
		`, email, name).Scan(&userID, &userName, &createdAt)
	}

	if err != nil {
		return auth.Identity{}, err
	}

	// 2. Check if credentials already exist
	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM credentials WHERE user_id = $1
		)
	`, userID).Scan(&exists)

	if err != nil {
		return auth.Identity{}, err
	}

	if exists {
		return auth.Identity{}, ErrAlreadyRegistered
	}

	// 3. Insert credentials
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, password_hash, hash_version)
		VALUES ($1, $2, $3)
	`, userID, hash, version)

	if err != nil {
		return auth.Identity{}, err
	}

	return auth.Identity{
		ID:        userID.String(),
		Email:     email,
		Name:      userName,
		CreatedAt: createdAt,
	}, nil
}

func (s *Service) Authenticate(
	ctx context.Context,
	email string,
	password string,
) (auth.Identity, error) {

	var (
		userID       uuid.UUID
		userEmail    string
		userName     string
		createdAt    time.Time
		passwordHash string
	)

	// 1. Find user + credentials
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, u.created_at, c.password_hash
		FROM users u
		JOIN credentials c ON c.user_id = u.id
		WHERE LOWER(u.email) = LOWER($1)
	`, strings.TrimSpace(email)).Scan(&userID, &userEmail, &userName, &createdAt, &passwordHash)

	if err != nil {
		// hide whether user exists or not
		return auth.Identity{}, ErrInvalidCredentials
	}

	// 2. Verify password
	if err := VerifyPassword(passwordHash, password); err != nil {
		return auth.Identity{}, ErrInvalidCredentials
	}

	return auth.Identity{
		ID:        userID.String(),
		Email:     userEmail,
		Name:      userName,
		CreatedAt: createdAt,
	}, nil
}
