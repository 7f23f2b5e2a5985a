package httpapi

import (
	"net/http"
	"time"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      any       `json:"user"`
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		c.MaxAge = -1
	} else {
		c.Expires = expires
	}
	http.SetCookie(w, c)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, member, err := s.lm.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	writeData(w, http.StatusOK, loginResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: member})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if token, _ := r.Context().Value(tokenKey).(string); token != "" {
		if err := s.lm.Logout(r.Context(), token); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.setSessionCookie(w, "", time.Time{})
	writeJSON(w, http.StatusOK, messageBody{Message: "ログアウトしました"})
}

type setupPasswordRequest struct {
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required,min=6"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required"`
}

func (s *Server) setupPassword(w http.ResponseWriter, r *http.Request) {
	var req setupPasswordRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.lm.SetupPassword(r.Context(), req.Email, req.Password, req.PasswordConfirmation)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "パスワードを設定しました", Data: m})
}

type changePasswordRequest struct {
	CurrentPassword      string `json:"current_password" validate:"required"`
	Password             string `json:"password" validate:"required,min=6"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required"`
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err := s.lm.ChangePassword(r.Context(), principal(r), req.CurrentPassword, req.Password, req.PasswordConfirmation)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "パスワードを変更しました"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	m, err := s.lm.Me(r.Context(), principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}
