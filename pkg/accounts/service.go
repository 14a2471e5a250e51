// Package accounts implements registration, sign-in and the self-service
// account flows: password reset, email verification and email change.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/potkeeper/pkg/access"
	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/async"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/observability"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

// LinkTTL bounds how long reset and email change links stay valid.
const LinkTTL = 24 * time.Hour

// ForgotPasswordMessage is returned whether or not the address exists.
const ForgotPasswordMessage = "If the email exists, a reset link will be sent."

// Session is returned by every flow that issues a token.
type Session struct {
	UserID        string           `json:"userId"`
	Token         string           `json:"token"`
	Kind          auth.AccountKind `json:"userType"`
	Email         string           `json:"email,omitempty"`
	DisplayName   string           `json:"displayName,omitempty"`
	EmailVerified bool             `json:"emailVerified"`
}

// Profile is the caller's own account view.
type Profile struct {
	*auth.User
	IsAdmin  bool        `json:"isAdmin"`
	PotCount int         `json:"potCount"`
	PotLimit int         `json:"potLimit"`
	Tier     access.Tier `json:"tier"`
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type UpgradeInput struct {
	AnonymousUserID string `json:"anonymousUserId"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	DisplayName     string `json:"displayName"`
}

type ProfilePatch struct {
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// Service runs the account flows.
type Service struct {
	db      *sql.DB
	tokens  *auth.TokenCodec
	hasher  *auth.PasswordHasher
	gate    *access.Gate
	mailer  Mailer
	runner  *async.Runner
	logger  *observability.Logger
	baseURL string
	now     func() time.Time
}

func NewService(db *sql.DB, tokens *auth.TokenCodec, hasher *auth.PasswordHasher, gate *access.Gate,
	mailer Mailer, runner *async.Runner, logger *observability.Logger, baseURL string) *Service {
	return &Service{
		db:      db,
		tokens:  tokens,
		hasher:  hasher,
		gate:    gate,
		mailer:  mailer,
		runner:  runner,
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for token expiry checks.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) users() *postgres.UserRepository { return postgres.NewUserRepository(s.db) }

// send delivers msg in the background. Failures are logged only.
func (s *Service) send(ctx context.Context, kind string, msg Message) {
	err := s.runner.Go(ctx, "send_"+kind+"_email", func(ctx context.Context) error {
		return s.mailer.Send(ctx, msg)
	})
	if err != nil {
		observability.FromContextOr(ctx, s.logger).WithError(err).WithField("email", kind).Warn("email not scheduled")
	}
}

func (s *Service) session(u *auth.User) (*Session, error) {
	token, err := s.tokens.Sign(u.Principal())
	if err != nil {
		return nil, err
	}
	return &Session{
		UserID:        u.ID,
		Token:         token,
		Kind:          u.Kind,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerified,
	}, nil
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return apperr.Validationf("email and password are required")
	}
	if !auth.ValidEmail(email) {
		return apperr.Validationf("invalid email format")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return apperr.Validationf("%s", err.Error())
	}
	return nil
}

// newEmailUser builds an unverified email account with fresh credentials.
func (s *Service) newEmailUser(email, password, displayName string) (*auth.User, error) {
	hash, salt, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	token, err := auth.RandomString(auth.LinkTokenLength)
	if err != nil {
		return nil, err
	}
	return &auth.User{
		ID:                uuid.NewString(),
		Kind:              auth.KindEmail,
		Email:             email,
		PasswordHash:      hash,
		PasswordSalt:      salt,
		DisplayName:       strings.TrimSpace(displayName),
		VerificationToken: token,
		CreatedAt:         s.now().UTC(),
	}, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	taken, err := s.users().EmailTaken(ctx, email, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflictf("email already registered")
	}
	return nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := auth.NormalizeEmail(in.Email)
	if err := validateCredentials(email, in.Password); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}

	u, err := s.newEmailUser(email, in.Password, in.DisplayName)
	if err != nil {
		return nil, err
	}
	if err := s.users().Create(ctx, u); err != nil {
		return nil, err
	}

	s.send(ctx, "verification", verificationMail(s.baseURL, u.Email, u.VerificationToken))
	s.send(ctx, "welcome", welcomeMail(s.baseURL, u.Email, u.DisplayName))
	s.logger.WithField("user_id", u.ID).Info("account registered")
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = auth.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validationf("email and password are required")
	}

	u, err := s.users().GetByEmail(ctx, email)
	if apperr.Is(err, apperr.NotFound) {
		return nil, apperr.Unauthenticatedf("invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if u.IsDisabled {
		return nil, apperr.Forbiddenf("account disabled, please contact support")
	}
	if !u.HasPassword() {
		return nil, apperr.Unauthenticatedf("invalid email or password")
	}
	ok, err := s.hasher.Verify(password, u.PasswordHash, u.PasswordSalt)
	if errors.Is(err, auth.ErrMalformedHash) {
		s.logger.WithField("user_id", u.ID).Warn("stored password hash is malformed")
		return nil, apperr.Unauthenticatedf("invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Unauthenticatedf("invalid email or password")
	}

	if err := s.users().TouchLastLogin(ctx, u.ID, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.session(u)
}

// Identify creates an anonymous account.
func (s *Service) Identify(ctx context.Context) (*Session, error) {
	u := &auth.User{
		ID:        uuid.NewString(),
		Kind:      auth.KindAnonymous,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users().Create(ctx, u); err != nil {
		return nil, err
	}
	return s.session(u)
}

// Upgrade turns an anonymous session into an email account and moves its
// pots over. The anonymous row is removed in the same transaction.
func (s *Service) Upgrade(ctx context.Context, p *auth.Principal, in UpgradeInput) (*Session, error) {
	if !p.IsAnonymous() {
		return nil, apperr.Validationf("only anonymous accounts can be upgraded")
	}
	if in.AnonymousUserID != "" && in.AnonymousUserID != p.UserID {
		return nil, apperr.Forbiddenf("cannot upgrade another account")
	}
	email := auth.NormalizeEmail(in.Email)
	if err := validateCredentials(email, in.Password); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}

	u, err := s.newEmailUser(email, in.Password, in.DisplayName)
	if err != nil {
		return nil, err
	}

	var moved int64
	err = postgres.WithTx(ctx, s.db, func(ctx context.Context, tx postgres.DBTX) error {
		users := postgres.NewUserRepository(tx)
		anon, err := users.GetByID(ctx, p.UserID)
		if err != nil {
			return err
		}
		if anon.Kind != auth.KindAnonymous {
			return apperr.Validationf("only anonymous accounts can be upgraded")
		}
		if err := users.Create(ctx, u); err != nil {
			return err
		}
		if moved, err = postgres.NewPotRepository(tx).Reassign(ctx, p.UserID, u.ID); err != nil {
			return err
		}
		return users.Delete(ctx, p.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.send(ctx, "verification", verificationMail(s.baseURL, u.Email, u.VerificationToken))
	s.logger.WithFields(map[string]interface{}{
		"anonymous_id": p.UserID,
		"user_id":      u.ID,
		"pots_moved":   moved,
	}).Info("anonymous account upgraded")
	return s.session(u)
}

// ForgotPassword mails a reset link when the address belongs to an account.
// Callers respond identically either way.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return apperr.Validationf("email is required")
	}
	u, err := s.users().GetByEmail(ctx, email)
	if apperr.Is(err, apperr.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token, err := auth.RandomString(auth.LinkTokenLength)
	if err != nil {
		return err
	}
	if err := s.users().SetResetToken(ctx, u.ID, token, s.now().UTC().Add(LinkTTL)); err != nil {
		return err
	}
	s.send(ctx, "reset", resetMail(s.baseURL, u.Email, token))
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" || password == "" {
		return apperr.Validationf("token and new password are required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return apperr.Validationf("%s", err.Error())
	}

	u, err := s.users().GetByResetToken(ctx, token)
	if apperr.Is(err, apperr.NotFound) {
		return apperr.Validationf("invalid or expired reset token")
	}
	if err != nil {
		return err
	}
	if u.ResetTokenExpires == nil || u.ResetTokenExpires.Before(s.now()) {
		return apperr.Validationf("invalid or expired reset token")
	}

	hash, salt, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.users().SetPassword(ctx, u.ID, hash, salt)
}

// VerifyEmail confirms the address behind a verification link and returns it.
func (s *Service) VerifyEmail(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.Validationf("verification token is required")
	}
	u, err := s.users().GetByVerificationToken(ctx, token)
	if apperr.Is(err, apperr.NotFound) {
		return "", apperr.Validationf("invalid or expired verification token")
	}
	if err != nil {
		return "", err
	}
	if err := s.users().MarkEmailVerified(ctx, u.ID); err != nil {
		return "", err
	}
	return u.Email, nil
}

func (s *Service) Me(ctx context.Context, p *auth.Principal) (*Profile, error) {
	u, err := s.users().GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	isAdmin, err := s.gate.IsAdmin(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	usage, err := s.gate.PotUsage(ctx, u)
	if err != nil {
		return nil, err
	}
	return &Profile{
		User:     u,
		IsAdmin:  isAdmin,
		PotCount: usage.Current,
		PotLimit: usage.Limit,
		Tier:     usage.Tier,
	}, nil
}

func (s *Service) UpdateProfile(ctx context.Context, p *auth.Principal, patch ProfilePatch) error {
	if patch.DisplayName == nil && patch.AvatarURL == nil {
		return apperr.Validationf("no data to update")
	}
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		patch.DisplayName = &name
	}
	return s.users().UpdateProfile(ctx, p.UserID, patch.DisplayName, patch.AvatarURL)
}

func (s *Service) ChangePassword(ctx context.Context, p *auth.Principal, current, next string) error {
	if current == "" || next == "" {
		return apperr.Validationf("current password and new password are required")
	}
	u, err := s.users().GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if !u.HasPassword() {
		return apperr.Validationf("account does not have a password set")
	}
	ok, err := s.hasher.Verify(current, u.PasswordHash, u.PasswordSalt)
	if err != nil && !errors.Is(err, auth.ErrMalformedHash) {
		return err
	}
	if !ok {
		return apperr.Unauthenticatedf("current password is incorrect")
	}
	if err := auth.ValidatePassword(next); err != nil {
		return apperr.Validationf("%s", err.Error())
	}

	hash, salt, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	return s.users().SetPassword(ctx, u.ID, hash, salt)
}

// ChangeEmail stores a pending address and mails a confirmation link to it.
// The current address stays active until the link is followed.
func (s *Service) ChangeEmail(ctx context.Context, p *auth.Principal, newEmail string) error {
	email := auth.NormalizeEmail(newEmail)
	if email == "" {
		return apperr.Validationf("new email is required")
	}
	if !auth.ValidEmail(email) {
		return apperr.Validationf("invalid email format")
	}
	u, err := s.users().GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if u.Email == email {
		return apperr.Validationf("new email is the same as current email")
	}
	if err := s.ensureEmailFree(ctx, email, u.ID); err != nil {
		return err
	}

	token, err := auth.RandomString(auth.LinkTokenLength)
	if err != nil {
		return err
	}
	if err := s.users().SetPendingEmail(ctx, u.ID, email, token, s.now().UTC().Add(LinkTTL)); err != nil {
		return err
	}
	s.send(ctx, "change_email", changeEmailMail(s.baseURL, u.Email, email, token))
	return nil
}

// VerifyNewEmail swaps in a pending address and returns it.
func (s *Service) VerifyNewEmail(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.Validationf("verification token is required")
	}
	u, err := s.users().GetByNewEmailToken(ctx, token)
	if apperr.Is(err, apperr.NotFound) {
		return "", apperr.Validationf("invalid or expired verification token")
	}
	if err != nil {
		return "", err
	}
	if u.NewEmailVerificationExpires == nil || u.NewEmailVerificationExpires.Before(s.now()) {
		return "", apperr.Validationf("verification token has expired")
	}
	if err := s.users().ConfirmNewEmail(ctx, u.ID); err != nil {
		return "", err
	}
	return u.NewEmail, nil
}

// SendVerification re-sends the verification link for the current address.
func (s *Service) SendVerification(ctx context.Context, p *auth.Principal) error {
	u, err := s.users().GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if u.Email == "" {
		return apperr.Validationf("account has no email address")
	}
	if u.EmailVerified {
		return apperr.Validationf("email already verified")
	}

	token := u.VerificationToken
	if token == "" {
		if token, err = auth.RandomString(auth.LinkTokenLength); err != nil {
			return err
		}
		if err := s.users().SetVerificationToken(ctx, u.ID, token); err != nil {
			return err
		}
	}
	s.send(ctx, "verification", verificationMail(s.baseURL, u.Email, token))
	return nil
}
