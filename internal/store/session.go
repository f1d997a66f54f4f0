package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/linkauth/internal/model"
)

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var s model.Session
	var ip, ua sql.NullString

	err := scanner.Scan(&s.ID, &s.Token, &s.UserID, &s.ExpiresAt, &ip, &ua, &s.CreatedAt)
	if err != nil {
		return nil, err
	}

	if ip.Valid {
		s.IPAddress = &ip.String
	}
	if ua.Valid {
		s.UserAgent = &ua.String
	}
	return &s, nil
}

const sessionCols = `id, token, user_id, expires_at, ip_address, user_agent, created_at`

// Insert creates a session with a generated id and a crypto-random bearer token.
// The caller decides the expiry instant; ip and userAgent are optional provenance.
func (s *SessionStore) Insert(ctx context.Context, userID string, expiresAt time.Time, ip, userAgent string) (*model.Session, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)
	id := uuid.NewString()

	var ipVal, uaVal sql.NullString
	if ip != "" {
		ipVal = sql.NullString{String: ip, Valid: true}
	}
	if userAgent != "" {
		uaVal = sql.NullString{String: userAgent, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, token, user_id, expires_at, ip_address, user_agent) VALUES (?, ?, ?, ?, ?, ?)`,
		id, token, userID, expiresAt.UTC(), ipVal, uaVal,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("read back session: %w", err)
	}
	return sess, nil
}

// FindWithUserByToken returns the session for the given token joined with its
// user, or (nil, nil) if either side is missing. Expiry is not filtered here;
// the caller owns the expiry decision.
func (s *SessionStore) FindWithUserByToken(ctx context.Context, token string) (*model.Session, *model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.token, s.user_id, s.expires_at, s.ip_address, s.user_agent, s.created_at,
			u.id, u.name, u.email, u.created_at, u.updated_at
		 FROM sessions s
		 INNER JOIN users u ON u.id = s.user_id
		 WHERE s.token = ?`,
		token,
	)

	var sess model.Session
	var u model.User
	var ip, ua sql.NullString

	err := row.Scan(
		&sess.ID, &sess.Token, &sess.UserID, &sess.ExpiresAt, &ip, &ua, &sess.CreatedAt,
		&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get session by token: %w", err)
	}

	if ip.Valid {
		sess.IPAddress = &ip.String
	}
	if ua.Valid {
		sess.UserAgent = &ua.String
	}
	return &sess, &u, nil
}
