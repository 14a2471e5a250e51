package api

import (
	"net/http"

	"github.com/platinummonkey/potkeeper/pkg/accounts"
	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/httputil"
	"github.com/platinummonkey/potkeeper/pkg/middleware"
	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// AccountHandlers handles registration, login and the account self-service
// routes.
type AccountHandlers struct {
	svc      *accounts.Service
	logger   *observability.Logger
	throttle *middleware.RateLimitMiddleware
}

func (h *AccountHandlers) Routes() []Route {
	identify := http.Handler(http.HandlerFunc(h.identify))
	if h.throttle != nil {
		identify = h.throttle.Handler(identify)
	}

	return []Route{
		{"auth.register", http.MethodPost, "/auth/register", Public, h.register},
		{"auth.login", http.MethodPost, "/auth/login", Public, h.login},
		{"auth.identify", http.MethodPost, "/auth/identify", Public, identify.ServeHTTP},
		{"auth.forgot_password", http.MethodPost, "/auth/forgot-password", Public, h.forgotPassword},
		{"auth.reset_password", http.MethodPost, "/auth/reset-password", Public, h.resetPassword},
		{"auth.verify_email", http.MethodGet, "/auth/verify-email", Public, h.verifyEmail},
		{"auth.verify_new_email", http.MethodGet, "/auth/verify-new-email", Public, h.verifyNewEmail},

		{"auth.upgrade", http.MethodPost, "/auth/upgrade", Authenticated, h.upgrade},
		{"auth.me", http.MethodGet, "/auth/me", Authenticated, h.me},
		{"auth.profile", http.MethodPut, "/auth/profile", Authenticated, h.updateProfile},
		{"auth.password", http.MethodPut, "/auth/password", Authenticated, h.changePassword},
		{"auth.change_email", http.MethodPost, "/auth/change-email", Authenticated, h.changeEmail},
		{"auth.send_verification", http.MethodPost, "/auth/send-verification-email", Authenticated, h.sendVerification},
	}
}

func sessionBody(s *accounts.Session, msg string) httputil.Body {
	body := httputil.Body{
		"userId":        s.UserID,
		"token":         s.Token,
		"userType":      s.Kind,
		"emailVerified": s.EmailVerified,
	}
	if s.Email != "" {
		body["email"] = s.Email
	}
	if s.DisplayName != "" {
		body["displayName"] = s.DisplayName
	}
	if msg != "" {
		body["message"] = msg
	}
	return body
}

// register handles POST /auth/register
func (h *AccountHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req accounts.RegisterInput
	if !decode(w, r, h.logger, &req) {
		return
	}

	session, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, sessionBody(session, "Registration successful. Please check your email to verify your account."))
}

// login handles POST /auth/login
func (h *AccountHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, h.logger, &req) {
		return
	}

	session, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, sessionBody(session, ""))
}

// identify handles POST /auth/identify
func (h *AccountHandlers) identify(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Identify(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, sessionBody(session, ""))
}

func (h *AccountHandlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, h.logger, &req) {
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, message(accounts.ForgotPasswordMessage))
}

func (h *AccountHandlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !decode(w, r, h.logger, &req) {
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, message("Password has been reset successfully"))
}

// verifyEmail handles GET /auth/verify-email, the target of the mailed link.
// It answers with a page rather than JSON.
func (h *AccountHandlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	email, err := h.svc.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.linkFailed(w, r, err)
		return
	}
	writePage(w, r, h.logger, http.StatusOK, "Email Verified", "Your email "+email+" has been verified.")
}

func (h *AccountHandlers) verifyNewEmail(w http.ResponseWriter, r *http.Request) {
	email, err := h.svc.VerifyNewEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.linkFailed(w, r, err)
		return
	}
	writePage(w, r, h.logger, http.StatusOK, "Email Updated", "Your email has been changed to "+email+".")
}

func (h *AccountHandlers) linkFailed(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		writeError(w, r, h.logger, err)
		return
	}
	writePage(w, r, h.logger, kind.HTTPStatus(), "Verification Failed", apperr.Message(err))
}

// upgrade handles POST /auth/upgrade
func (h *AccountHandlers) upgrade(w http.ResponseWriter, r *http.Request) {
	var req accounts.UpgradeInput
	if !decode(w, r, h.logger, &req) {
		return
	}

	session, err := h.svc.Upgrade(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, sessionBody(session, "Account upgraded successfully. Your data has been migrated."))
}

// me handles GET /auth/me
func (h *AccountHandlers) me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.svc.Me(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, httputil.Body{"user": profile})
}

func (h *AccountHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req accounts.ProfilePatch
	if !decode(w, r, h.logger, &req) {
		return
	}

	if err := h.svc.UpdateProfile(r.Context(), principal(r), req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, message("Profile updated successfully"))
}

func (h *AccountHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decode(w, r, h.logger, &req) {
		return
	}

	if err := h.svc.ChangePassword(r.Context(), principal(r), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, message("Password changed successfully"))
}

func (h *AccountHandlers) changeEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewEmail string `json:"newEmail"`
	}
	if !decode(w, r, h.logger, &req) {
		return
	}

	if err := h.svc.ChangeEmail(r.Context(), principal(r), req.NewEmail); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, message("Verification email sent to the new address"))
}

func (h *AccountHandlers) sendVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SendVerification(r.Context(), principal(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ok(w, message("Verification email sent"))
}
