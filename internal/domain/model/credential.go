package model

import "time"

// CredentialRecord holds the OAuth material a user granted for one app.
// UserID and AppType identify the record; the store keeps at most one
// record per pair, so at most one can be active.
type CredentialRecord struct {
	ID           string
	UserID       string
	AppType      string // Registry key, lower-case ("gmail", "slack").
	AppName      string // Display name supplied at connect time ("Gmail").
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time // Zero when the provider did not report one.
	Scope        string
	Metadata     CredentialMetadata
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CredentialMetadata is descriptive data captured during the connect flow.
// It is never used for authentication.
type CredentialMetadata struct {
	Email       string    `json:"email,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	Scopes      []string  `json:"scopes,omitempty"`
}

// HasAccessToken reports whether the record carries a usable token.
func (c CredentialRecord) HasAccessToken() bool {
	return c.AccessToken != ""
}

// IsExpired reports whether the access token expired before now.
// Records without an expiry never expire.
func (c CredentialRecord) IsExpired(now time.Time) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return now.After(c.Expiry)
}
