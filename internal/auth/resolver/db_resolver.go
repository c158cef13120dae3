package resolver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"horizon-web/internal/auth"
	"horizon-web/internal/db"

	"github.com/google/uuid"
)

// ErrUnverifiedEmail is returned when an identity claims the email of an
// existing user without the provider vouching for it.
var ErrUnverifiedEmail = errors.New("resolver: email in use and not verified by provider")

// DBResolver resolves identities using the database.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

type userRow struct {
	id        uuid.UUID
	email     string
	name      string
	createdAt time.Time
}

func (u userRow) identity() auth.Identity {
	return auth.Identity{
		ID:        u.id.String(),
		Email:     u.email,
		Name:      u.name,
		CreatedAt: u.createdAt,
	}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	identity *auth.ExternalIdentity,
) (auth.Identity, error) {

	if identity == nil {
		return auth.Identity{}, errors.New("identity is nil")
	}

	// 1. Try identity lookup (provider + provider_user_id)
	var u userRow
	err := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, u.created_at
		FROM users u
		JOIN identities i ON i.user_id = u.id
		WHERE i.provider = $1
		  AND i.provider_user_id = $2
	`,
		identity.Provider,
		identity.ProviderUserID,
	).Scan(&u.id, &u.email, &u.name, &u.createdAt)

	if err == nil {
		return u.identity(), nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, err
	}

	// 2. Try email-based linking (existing user, new provider)
	err = r.db.QueryRowContext(ctx, `
		SELECT id, email, name, created_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`,
		identity.Email,
	).Scan(&u.id, &u.email, &u.name, &u.createdAt)

	if err == nil {
		if !identity.EmailVerified {
			return auth.Identity{}, ErrUnverifiedEmail
		}
		if err := r.link(ctx, u.id, identity); err != nil {
			return auth.Identity{}, err
		}
		return u.identity(), nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, err
	}

	// 3. Create new user
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, email_verified, name)
		VALUES ($1, $2, $3)
		RETURNING id, email, name, created_at
	`,
		identity.Email,
		identity.EmailVerified,
		identity.Name,
	).Scan(&u.id, &u.email, &u.name, &u.createdAt)

	if err != nil {
		return auth.Identity{}, err
	}

	// 4. Create identity mapping
	if err := r.link(ctx, u.id, identity); err != nil {
		return auth.Identity{}, err
	}

	return u.identity(), nil
}

func (r *DBResolver) link(ctx context.Context, userID uuid.UUID, identity *auth.ExternalIdentity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (user_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
	`,
		userID,
		identity.Provider,
		identity.ProviderUserID,
	)
	return err
}
