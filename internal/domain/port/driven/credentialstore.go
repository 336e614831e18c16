package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/blimp/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// BLIMP_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set BLIMP_SECRET_KEY")

// ErrCredentialNotFound is returned by Deactivate when there is no record
// for the user and app.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore defines the driven port for per-user credential persistence.
// The adapter is responsible for encrypting tokens at rest; this interface
// operates on plaintext values at the domain boundary.
type CredentialStore interface {
	// GetActive returns the active credential for userID and appType.
	// Returns (nil, nil) when the user never connected the app or revoked it.
	GetActive(ctx context.Context, userID, appType string) (*model.CredentialRecord, error)

	// Put stores rec, replacing any existing record for the same
	// (UserID, AppType) pair, and returns the record id. The stored record is
	// always active.
	Put(ctx context.Context, rec model.CredentialRecord) (string, error)

	// ListConnectedApps returns the app types with an active credential for
	// userID, sorted.
	ListConnectedApps(ctx context.Context, userID string) ([]string, error)

	// Deactivate marks the credential for userID and appType inactive.
	// Returns ErrCredentialNotFound when no record exists.
	Deactivate(ctx context.Context, userID, appType string) error
}
