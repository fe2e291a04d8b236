package user

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("user not found")

type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	// UpsertByGoogleID creates the user on first login and refreshes
	// profile fields on subsequent logins.
	UpsertByGoogleID(ctx context.Context, u *User) (*User, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var u User
	err := r.db.QueryRow(ctx, `
		SELECT id, username, email, google_id, avatar_url, created_at
		FROM users WHERE id=$1
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.GoogleID, &u.AvatarURL, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PGRepo) UpsertByGoogleID(ctx context.Context, u *User) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var out User
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (username, email, google_id, avatar_url, created_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (google_id) DO UPDATE
		SET username = EXCLUDED.username,
		    email = EXCLUDED.email,
		    avatar_url = EXCLUDED.avatar_url
		RETURNING id, username, email, google_id, avatar_url, created_at
	`, u.Username, u.Email, u.GoogleID, u.AvatarURL).
		Scan(&out.ID, &out.Username, &out.Email, &out.GoogleID, &out.AvatarURL, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
