package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/geo-attendance-api/internal/models"
)

const tokenColumns = `id, session_id, digest, created_at, expires_at, is_active, used_count, max_uses`

// TokenRepository handles persistence of attendance tokens. Digest uniqueness
// is enforced at the storage layer.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts a freshly issued token.
func (r *TokenRepository) Create(ctx context.Context, token *models.AttendanceToken) (*models.AttendanceToken, error) {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	token.IsActive = true

	query := fmt.Sprintf(`INSERT INTO attendance_tokens (%s)
VALUES (:id, :session_id, :digest, :created_at, :expires_at, :is_active, :used_count, :max_uses)`, tokenColumns)
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	return token, nil
}

// Consume validates and uses the token in one atomic statement: the
// used_count increment only happens while the validity predicate holds, so
// concurrent scans of a capped token can never push it past max_uses.
// sql.ErrNoRows means the token is unknown, revoked, expired, or spent.
func (r *TokenRepository) Consume(ctx context.Context, digest string, now time.Time) (*models.AttendanceToken, error) {
	query := fmt.Sprintf(`UPDATE attendance_tokens
SET used_count = used_count + 1
WHERE digest = $1
  AND is_active = TRUE
  AND expires_at >= $2
  AND (max_uses = 0 OR used_count < max_uses)
RETURNING %s`, tokenColumns)

	var token models.AttendanceToken
	if err := r.db.GetContext(ctx, &token, query, digest, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("consume token: %w", err)
	}
	return &token, nil
}

// FindByDigest loads a token row without consuming it.
func (r *TokenRepository) FindByDigest(ctx context.Context, digest string) (*models.AttendanceToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_tokens WHERE digest = $1`, tokenColumns)
	var token models.AttendanceToken
	if err := r.db.GetContext(ctx, &token, query, digest); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find token: %w", err)
	}
	return &token, nil
}

// DeactivateByDigest force-revokes one token. Missing digests are not an
// error; refresh treats an unknown old token as already gone.
func (r *TokenRepository) DeactivateByDigest(ctx context.Context, digest string) error {
	query := `UPDATE attendance_tokens SET is_active = FALSE WHERE digest = $1`
	if _, err := r.db.ExecContext(ctx, query, digest); err != nil {
		return fmt.Errorf("deactivate token: %w", err)
	}
	return nil
}

// DeactivateBySession revokes every active token for a session so stale QR
// codes stop working once the session closes. Returns how many were revoked.
func (r *TokenRepository) DeactivateBySession(ctx context.Context, sessionID string) (int, error) {
	query := `UPDATE attendance_tokens SET is_active = FALSE WHERE session_id = $1 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deactivate session tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate session tokens: rows affected: %w", err)
	}
	return int(n), nil
}
