package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/storage"
)

const userColumns = `id, account_kind, COALESCE(email, ''), COALESCE(password_hash, ''), COALESCE(password_salt, ''),
	COALESCE(display_name, ''), COALESCE(avatar_url, ''), email_verified, pot_quota, is_disabled,
	COALESCE(verification_token, ''), COALESCE(reset_token, ''), reset_token_expires,
	COALESCE(new_email, ''), COALESCE(new_email_verification_token, ''), new_email_verification_expires,
	created_at, last_login`

// UserColumnNames lists the scan order of userColumns, for building mock rows.
var UserColumnNames = []string{
	"id", "account_kind", "email", "password_hash", "password_salt",
	"display_name", "avatar_url", "email_verified", "pot_quota", "is_disabled",
	"verification_token", "reset_token", "reset_token_expires",
	"new_email", "new_email_verification_token", "new_email_verification_expires",
	"created_at", "last_login",
}

// UserRepository persists accounts.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	u := &auth.User{}
	var kind string
	var quota sql.NullInt64
	var resetExpires, newEmailExpires, lastLogin sql.NullTime

	err := row.Scan(&u.ID, &kind, &u.Email, &u.PasswordHash, &u.PasswordSalt,
		&u.DisplayName, &u.AvatarURL, &u.EmailVerified, &quota, &u.IsDisabled,
		&u.VerificationToken, &u.ResetToken, &resetExpires,
		&u.NewEmail, &u.NewEmailVerificationToken, &newEmailExpires,
		&u.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}

	u.Kind = auth.AccountKind(kind)
	if quota.Valid {
		q := int(quota.Int64)
		u.PotQuota = &q
	}
	u.ResetTokenExpires = nullTimePtr(resetExpires)
	u.NewEmailVerificationExpires = nullTimePtr(newEmailExpires)
	u.LastLogin = nullTimePtr(lastLogin)
	return u, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a new account.
func (r *UserRepository) Create(ctx context.Context, u *auth.User) error {
	query := `INSERT INTO users (id, account_kind, email, password_hash, password_salt, display_name,
		email_verified, verification_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		u.ID, string(u.Kind), nullString(u.Email), nullString(u.PasswordHash), nullString(u.PasswordSalt),
		nullString(u.DisplayName), u.EmailVerified, nullString(u.VerificationToken), u.CreatedAt)
	return mapError(err, "insert user", "user not found", "email already registered")
}

func (r *UserRepository) getBy(ctx context.Context, column string, value interface{}) (*auth.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, column)
	u, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		return nil, mapError(err, "get user", "user not found", "")
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*auth.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail looks up an account by its normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string) (*auth.User, error) {
	return r.getBy(ctx, "verification_token", token)
}

func (r *UserRepository) GetByResetToken(ctx context.Context, token string) (*auth.User, error) {
	return r.getBy(ctx, "reset_token", token)
}

func (r *UserRepository) GetByNewEmailToken(ctx context.Context, token string) (*auth.User, error) {
	return r.getBy(ctx, "new_email_verification_token", token)
}

// EmailTaken reports whether another account already uses email.
func (r *UserRepository) EmailTaken(ctx context.Context, email, exceptID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)`, email, exceptID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// QuotaState is the account state the quota check needs.
type QuotaState struct {
	Kind          auth.AccountKind
	EmailVerified bool
	PotQuota      *int
	IsDisabled    bool
}

// LockQuotaState reads the quota-relevant fields and locks the row for the
// rest of the transaction, serializing concurrent pot creation per user.
func (r *UserRepository) LockQuotaState(ctx context.Context, id string) (*QuotaState, error) {
	var st QuotaState
	var kind string
	var quota sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT account_kind, email_verified, pot_quota, is_disabled FROM users WHERE id = $1 FOR UPDATE`, id).
		Scan(&kind, &st.EmailVerified, &quota, &st.IsDisabled)
	if err != nil {
		return nil, mapError(err, "lock user", "user not found", "")
	}
	st.Kind = auth.AccountKind(kind)
	if quota.Valid {
		q := int(quota.Int64)
		st.PotQuota = &q
	}
	return &st, nil
}

// AdminIdentity returns the email and verification flag used by the admin gate.
func (r *UserRepository) AdminIdentity(ctx context.Context, id string) (email string, verified bool, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(email, ''), email_verified FROM users WHERE id = $1`, id).Scan(&email, &verified)
	if err != nil {
		return "", false, mapError(err, "get admin identity", "user not found", "")
	}
	return email, verified, nil
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, op, "user not found", "email already registered")
	}
	return checkAffected(res, op, "user not found")
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "update last login", `UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
}

// SetPassword replaces the credentials and invalidates any reset token.
func (r *UserRepository) SetPassword(ctx context.Context, id, hash, salt string) error {
	return r.exec(ctx, "set password",
		`UPDATE users SET password_hash = $1, password_salt = $2, reset_token = NULL, reset_token_expires = NULL WHERE id = $3`,
		hash, salt, id)
}

func (r *UserRepository) SetResetToken(ctx context.Context, id, token string, expires time.Time) error {
	return r.exec(ctx, "set reset token",
		`UPDATE users SET reset_token = $1, reset_token_expires = $2 WHERE id = $3`, token, expires, id)
}

func (r *UserRepository) SetVerificationToken(ctx context.Context, id, token string) error {
	return r.exec(ctx, "set verification token",
		`UPDATE users SET verification_token = $1 WHERE id = $2`, token, id)
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.exec(ctx, "verify email",
		`UPDATE users SET email_verified = TRUE, verification_token = NULL WHERE id = $1`, id)
}

// UpdateProfile changes the non-nil fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, displayName, avatarURL *string) error {
	set := &setClause{}
	if displayName != nil {
		set.add("display_name", *displayName)
	}
	if avatarURL != nil {
		set.add("avatar_url", *avatarURL)
	}
	if set.empty() {
		return nil
	}
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = %s`, set.sql(), set.arg(id))
	return r.exec(ctx, "update profile", query, set.args...)
}

func (r *UserRepository) SetPendingEmail(ctx context.Context, id, email, token string, expires time.Time) error {
	return r.exec(ctx, "set pending email",
		`UPDATE users SET new_email = $1, new_email_verification_token = $2, new_email_verification_expires = $3 WHERE id = $4`,
		email, token, expires, id)
}

// ConfirmNewEmail swaps in the pending address and marks it verified.
func (r *UserRepository) ConfirmNewEmail(ctx context.Context, id string) error {
	return r.exec(ctx, "confirm new email",
		`UPDATE users SET email = new_email, email_verified = TRUE, new_email = NULL,
			new_email_verification_token = NULL, new_email_verification_expires = NULL
		 WHERE id = $1 AND new_email IS NOT NULL`, id)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

// AdminUpdate carries the fields an administrator may change.
type AdminUpdate struct {
	IsDisabled    *bool
	EmailVerified *bool
	DisplayName   *string
	// SetQuota selects whether PotQuota is written; a nil PotQuota clears
	// the override.
	SetQuota bool
	PotQuota *int
}

func (u AdminUpdate) Empty() bool {
	return u.IsDisabled == nil && u.EmailVerified == nil && u.DisplayName == nil && !u.SetQuota
}

func (r *UserRepository) ApplyAdminUpdate(ctx context.Context, id string, u AdminUpdate) error {
	set := &setClause{}
	if u.IsDisabled != nil {
		set.add("is_disabled", *u.IsDisabled)
	}
	if u.EmailVerified != nil {
		set.add("email_verified", *u.EmailVerified)
	}
	if u.DisplayName != nil {
		set.add("display_name", *u.DisplayName)
	}
	if u.SetQuota {
		var quota sql.NullInt64
		if u.PotQuota != nil {
			quota = sql.NullInt64{Int64: int64(*u.PotQuota), Valid: true}
		}
		set.add("pot_quota", quota)
	}
	if set.empty() {
		return nil
	}
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = %s`, set.sql(), set.arg(id))
	return r.exec(ctx, "admin update user", query, set.args...)
}

const summaryColumns = `u.id, u.account_kind, COALESCE(u.email, ''), COALESCE(u.display_name, ''),
	u.email_verified, u.is_disabled, u.pot_quota, u.created_at, u.last_login,
	(SELECT COUNT(*) FROM pots p WHERE p.user_id = u.id)`

// SummaryColumnNames lists the scan order of user summaries.
var SummaryColumnNames = []string{
	"id", "account_kind", "email", "display_name", "email_verified", "is_disabled",
	"pot_quota", "created_at", "last_login", "pot_count",
}

func scanSummary(row interface{ Scan(...any) error }) (*storage.UserSummary, error) {
	s := &storage.UserSummary{}
	var quota sql.NullInt64
	var lastLogin sql.NullTime
	if err := row.Scan(&s.ID, &s.Kind, &s.Email, &s.DisplayName, &s.EmailVerified, &s.IsDisabled,
		&quota, &s.CreatedAt, &lastLogin, &s.PotCount); err != nil {
		return nil, err
	}
	if quota.Valid {
		q := int(quota.Int64)
		s.PotQuota = &q
	}
	s.LastLogin = nullTimePtr(lastLogin)
	return s, nil
}

// Summary returns the admin view of one account.
func (r *UserRepository) Summary(ctx context.Context, id string) (*storage.UserSummary, error) {
	query := fmt.Sprintf(`SELECT %s FROM users u WHERE u.id = $1`, summaryColumns)
	s, err := scanSummary(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "get user summary", "user not found", "")
	}
	return s, nil
}

func userSearch(search string) (string, []interface{}) {
	if search == "" {
		return "", nil
	}
	return ` WHERE (u.email ILIKE $1 OR u.display_name ILIKE $1 OR u.id ILIKE $1)`, []interface{}{"%" + search + "%"}
}

// List returns one page of accounts, newest first, with the total matching
// count. Both queries share the same predicate.
func (r *UserRepository) List(ctx context.Context, search string, page storage.Page) ([]*storage.UserSummary, int, error) {
	where, args := userSearch(search)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM users u%s ORDER BY u.created_at DESC LIMIT $%d OFFSET $%d`,
		summaryColumns, where, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*storage.UserSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}
