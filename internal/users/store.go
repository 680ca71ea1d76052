// Package users provides PostgreSQL-backed storage for registered users and
// their prompt credits. Emails are kept sealed and IP addresses hashed.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DefaultFreeCredits is the credit balance granted on registration.
const DefaultFreeCredits = 3000

var (
	// ErrNotFound is returned when no user matches a lookup.
	ErrNotFound = errors.New("users: not found")

	// ErrInsufficientCredits is returned when a deduction exceeds the balance.
	ErrInsufficientCredits = errors.New("users: insufficient credits")
)

// User is a registered user.
type User struct {
	ID               int64
	UUID             string
	EmailHash        string
	EmailSealed      []byte
	IPHash           string
	AvailableCredits int
	CreatedAt        time.Time
}

// Store manages users in PostgreSQL.
type Store struct {
	db          *sql.DB
	sealer      *Sealer
	freeCredits int
}

// NewStore creates a user store. freeCredits is granted to each new user;
// a negative value selects DefaultFreeCredits.
func NewStore(db *sql.DB, sealer *Sealer, freeCredits int) *Store {
	if freeCredits < 0 {
		freeCredits = DefaultFreeCredits
	}
	return &Store{db: db, sealer: sealer, freeCredits: freeCredits}
}

const userColumns = `id, uuid, email_hash, email_sealed, ip_hash, available_credits, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.UUID, &u.EmailHash, &u.EmailSealed, &u.IPHash, &u.AvailableCredits, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByIP returns the user registered from the given public IP.
func (s *Store) FindByIP(ctx context.Context, ip string) (*User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE ip_hash = $1 ORDER BY id LIMIT 1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, HashIP(ip)))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("users: find by ip: %w", err)
	}
	return u, err
}

// FindByEmailOrIP returns the first user matching either the email or the
// public IP.
func (s *Store) FindByEmailOrIP(ctx context.Context, email, ip string) (*User, error) {
	const query = `SELECT ` + userColumns + ` FROM users
		WHERE email_hash = $1 OR ip_hash = $2
		ORDER BY id LIMIT 1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, s.sealer.HashEmail(email), HashIP(ip)))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("users: find by email or ip: %w", err)
	}
	return u, err
}

// FindByUUID returns the user with the given identifier.
func (s *Store) FindByUUID(ctx context.Context, uuid string) (*User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE uuid = $1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, uuid))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("users: find by uuid: %w", err)
	}
	return u, err
}

// Register returns the user matching email or ip, or creates one with the
// free credit grant. created reports whether a new user was inserted.
func (s *Store) Register(ctx context.Context, email, ip string) (user *User, created bool, err error) {
	existing, err := s.FindByEmailOrIP(ctx, email, ip)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	sealed, err := s.sealer.Seal(email)
	if err != nil {
		return nil, false, err
	}

	const query = `
		INSERT INTO users (uuid, email_hash, email_sealed, ip_hash, available_credits)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRowContext(ctx, query,
		UserUUID(email, ip),
		s.sealer.HashEmail(email),
		sealed,
		HashIP(ip),
		s.freeCredits,
	))
	if err != nil {
		// A concurrent registration with the same identity won the insert.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			u, err := s.FindByUUID(ctx, UserUUID(email, ip))
			return u, false, err
		}
		return nil, false, fmt.Errorf("users: insert: %w", err)
	}
	return u, true, nil
}

// Deduct atomically subtracts amount from the user's balance and returns the
// new balance. The balance never goes negative: a deduction larger than the
// balance fails with ErrInsufficientCredits and changes nothing.
func (s *Store) Deduct(ctx context.Context, uuid string, amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("users: negative deduction %d", amount)
	}

	const query = `
		UPDATE users SET available_credits = available_credits - $2
		WHERE uuid = $1 AND available_credits >= $2
		RETURNING available_credits`

	var remaining int
	err := s.db.QueryRowContext(ctx, query, uuid, amount).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("users: deduct: %w", err)
	}

	// No row updated: either the user is unknown or the balance is short.
	u, err := s.FindByUUID(ctx, uuid)
	if err != nil {
		return 0, err
	}
	return u.AvailableCredits, ErrInsufficientCredits
}

// Email opens the sealed email of u.
func (s *Store) Email(u *User) (string, error) {
	return s.sealer.Open(u.EmailSealed)
}
