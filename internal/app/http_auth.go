package app

import (
	"errors"
	"net/http"
	"strings"

	"carmarket/api/internal/authpw"
)

type credentialsBody struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

type tokenBody struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	NewPassword  string `json:"newPassword"`
	Email        string `json:"email"`
}

// handleAuthSignUp registers a seller account. Without SMTP the verification
// token comes back in the response so local setups can finish sign-up.
func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !readBody(w, r, &body) {
		return
	}

	created, err := s.service.AuthPasswordService().SignUp(r.Context(), authpw.SignUpRequest{
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Phone:     body.Phone,
	})
	switch {
	case errors.Is(err, authpw.ErrEmailExists):
		writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}

	response := map[string]any{"userId": created.UserID}
	if s.service.SMTPConfigured() {
		name := strings.TrimSpace(body.FirstName + " " + body.LastName)
		s.service.SendVerificationEmail(strings.TrimSpace(body.Email), name, created.VerificationToken)
		response["message"] = "Please check your email to verify your account"
	} else {
		response["devVerificationToken"] = created.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !readBody(w, r, &body) {
		return
	}

	result, err := s.service.AuthPasswordService().SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	switch {
	case errors.Is(err, authpw.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, "ACCOUNT_DISABLED", "This account has been disabled", nil)
		return
	case err != nil:
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	case result.RequiresVerify:
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
		return
	}

	session, err := s.service.CreateSession(r.Context(), result.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if !readBody(w, r, &body) {
		return
	}
	if err := s.service.AuthPasswordService().VerifyEmail(r.Context(), body.Token); err != nil {
		writeError(w, http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

// handleAuthRequestReset answers the same way whether or not the account
// exists.
func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if !readBody(w, r, &body) {
		return
	}

	token, err := s.service.AuthPasswordService().RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response := map[string]any{"message": "If an account exists, a reset email has been sent"}
	switch {
	case s.service.SMTPConfigured():
		s.service.SendPasswordResetEmail(strings.TrimSpace(body.Email), token)
	case token != "":
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if !readBody(w, r, &body) {
		return
	}
	err := s.service.AuthPasswordService().ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	session := s.optionalSession(r)
	if session.UserID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userName":      session.UserName,
		"userId":        session.UserID,
		"email":         session.Email,
		"role":          session.Role,
	})
}

// handleSessionRefresh trades a refresh token for a new pair. The presented
// token stops working.
func (s *HTTPServer) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if !readBody(w, r, &body) {
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userName":     session.UserName,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), s.optionalSession(r), body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
