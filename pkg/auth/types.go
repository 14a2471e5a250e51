package auth

import "time"

// AccountKind distinguishes anonymous identities from registered accounts.
type AccountKind string

const (
	KindAnonymous AccountKind = "anonymous"
	KindEmail     AccountKind = "email"
)

// Valid reports whether k is a known account kind.
func (k AccountKind) Valid() bool {
	return k == KindAnonymous || k == KindEmail
}

// Principal is the identity resolved from a verified token.
// It is attached to the request context by the identity middleware.
type Principal struct {
	UserID string      `json:"userId"`
	Kind   AccountKind `json:"type"`
	Email  string      `json:"email,omitempty"`
}

// IsAnonymous reports whether the principal belongs to an anonymous account.
func (p *Principal) IsAnonymous() bool {
	return p != nil && p.Kind == KindAnonymous
}

// User is a stored account.
type User struct {
	ID            string      `json:"id"`
	Kind          AccountKind `json:"type"`
	Email         string      `json:"email,omitempty"`
	PasswordHash  string      `json:"-"`
	PasswordSalt  string      `json:"-"`
	DisplayName   string      `json:"displayName,omitempty"`
	AvatarURL     string      `json:"avatarUrl,omitempty"`
	EmailVerified bool        `json:"emailVerified"`
	PotQuota      *int        `json:"potQuota,omitempty"`
	IsDisabled    bool        `json:"isDisabled"`
	CreatedAt     time.Time   `json:"createdAt"`
	LastLogin     *time.Time  `json:"lastLogin,omitempty"`

	VerificationToken           string     `json:"-"`
	ResetToken                  string     `json:"-"`
	ResetTokenExpires           *time.Time `json:"-"`
	NewEmail                    string     `json:"-"`
	NewEmailVerificationToken   string     `json:"-"`
	NewEmailVerificationExpires *time.Time `json:"-"`
}

// Principal returns the token identity for u.
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Kind: u.Kind, Email: u.Email}
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != "" && u.PasswordSalt != ""
}
