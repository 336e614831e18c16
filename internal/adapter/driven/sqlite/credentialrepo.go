package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Access and refresh tokens are sealed together with AES-256-GCM; the
// (user_id, app_type) pair is bound as additional data so a blob copied onto
// another user's row fails to decrypt.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
	now func() time.Time
}

// tokenBlob is the plaintext sealed into user_credentials.token_blob.
type tokenBlob struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (token operations return driven.ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key, now: time.Now}
}

// GetActive returns the active credential for userID and appType, or (nil, nil).
func (r *CredentialRepo) GetActive(ctx context.Context, userID, appType string) (*model.CredentialRecord, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT id, user_id, app_type, app_name, token_blob, token_type, expires_at, scope,
		metadata, is_active, created_at, updated_at
		FROM user_credentials WHERE user_id = ? AND app_type = ? AND is_active = 1`

	rec, blob, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, userID, appType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s/%s: %w", userID, appType, err)
	}

	tokens, err := r.open(blob, userID, appType)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential %s/%s: %w", userID, appType, err)
	}
	rec.AccessToken = tokens.AccessToken
	rec.RefreshToken = tokens.RefreshToken
	return rec, nil
}

// Put upserts rec on (user_id, app_type) and marks it active. The id of an
// existing row is kept.
func (r *CredentialRepo) Put(ctx context.Context, rec model.CredentialRecord) (string, error) {
	blob, err := r.seal(tokenBlob{AccessToken: rec.AccessToken, RefreshToken: rec.RefreshToken}, rec.UserID, rec.AppType)
	if err != nil {
		return "", err
	}

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal credential metadata: %w", err)
	}

	var expiresAt sql.NullString
	if !rec.Expiry.IsZero() {
		expiresAt = sql.NullString{String: formatTime(rec.Expiry), Valid: true}
	}
	tokenType := rec.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	now := formatTime(r.now())

	const query = `INSERT INTO user_credentials
		(id, user_id, app_type, app_name, token_blob, token_type, expires_at, scope, metadata, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (user_id, app_type) DO UPDATE SET
			app_name = excluded.app_name,
			token_blob = excluded.token_blob,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			metadata = excluded.metadata,
			is_active = 1,
			updated_at = excluded.updated_at
		RETURNING id`

	var id string
	err = r.db.Writer.QueryRowContext(ctx, query,
		uuid.NewString(), rec.UserID, rec.AppType, rec.AppName, blob, tokenType,
		expiresAt, rec.Scope, string(meta), now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("put credential %s/%s: %w", rec.UserID, rec.AppType, err)
	}
	return id, nil
}

// ListConnectedApps returns the app types with an active credential for userID.
func (r *CredentialRepo) ListConnectedApps(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT app_type FROM user_credentials WHERE user_id = ? AND is_active = 1 ORDER BY app_type`
	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list connected apps: %w", err)
	}
	defer rows.Close()

	apps := []string{}
	for rows.Next() {
		var app string
		if err := rows.Scan(&app); err != nil {
			return nil, fmt.Errorf("scan connected app: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connected apps: %w", err)
	}
	return apps, nil
}

// List returns credential records without token material, ordered by user
// and app. An empty userID lists every user. Inactive records are included.
func (r *CredentialRepo) List(ctx context.Context, userID string) ([]model.CredentialRecord, error) {
	query := `SELECT id, user_id, app_type, app_name, token_blob, token_type, expires_at, scope,
		metadata, is_active, created_at, updated_at FROM user_credentials`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY user_id, app_type`

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var recs []model.CredentialRecord
	for rows.Next() {
		rec, _, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return recs, nil
}

// Deactivate marks the credential for userID and appType inactive.
func (r *CredentialRepo) Deactivate(ctx context.Context, userID, appType string) error {
	const query = `UPDATE user_credentials SET is_active = 0, updated_at = ? WHERE user_id = ? AND app_type = ?`
	res, err := r.db.Writer.ExecContext(ctx, query, formatTime(r.now()), userID, appType)
	if err != nil {
		return fmt.Errorf("deactivate credential %s/%s: %w", userID, appType, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate credential %s/%s: %w", userID, appType, err)
	}
	if n == 0 {
		return driven.ErrCredentialNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanCredential reads one user_credentials row. The sealed token blob is
// returned separately so callers decide whether to open it.
func scanCredential(row rowScanner) (*model.CredentialRecord, string, error) {
	var (
		rec       model.CredentialRecord
		blob      string
		expiresAt sql.NullString
		meta      string
		active    int
		createdAt string
		updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.AppType, &rec.AppName, &blob, &rec.TokenType,
		&expiresAt, &rec.Scope, &meta, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, "", err
	}

	rec.IsActive = active == 1
	if expiresAt.Valid && expiresAt.String != "" {
		if rec.Expiry, err = parseTime(expiresAt.String); err != nil {
			return nil, "", fmt.Errorf("parse expires_at: %w", err)
		}
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, "", fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, "", fmt.Errorf("parse updated_at: %w", err)
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, "", fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &rec, blob, nil
}

func additionalData(userID, appType string) []byte {
	return []byte(userID + "\x00" + appType)
}

// seal encrypts tokens with AES-256-GCM and returns base64(nonce || ciphertext || tag).
func (r *CredentialRepo) seal(tokens tokenBlob, userID, appType string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return "", fmt.Errorf("marshal tokens: %w", err)
	}

	gcm, err := r.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, additionalData(userID, appType))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// open reverses seal. It fails if the blob was sealed for a different user or app.
func (r *CredentialRepo) open(encoded, userID, appType string) (tokenBlob, error) {
	var tokens tokenBlob

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return tokens, fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.aead()
	if err != nil {
		return tokens, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return tokens, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, additionalData(userID, appType))
	if err != nil {
		return tokens, fmt.Errorf("gcm.Open: %w", err)
	}
	if err := json.Unmarshal(plaintext, &tokens); err != nil {
		return tokens, fmt.Errorf("decode tokens: %w", err)
	}
	return tokens, nil
}

func (r *CredentialRepo) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
