package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
)

type registerRequest struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	Confirmation string `json:"confirmation" validate:"required"`
	Kitchen      bool   `json:"kitchen"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			req.Email, err = d.Str()
		case "password":
			req.Password, err = d.Str()
		case "confirmation":
			req.Confirmation, err = d.Str()
		case "kitchen":
			req.Kitchen, err = decodeBool(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = h.validate.Struct(req)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.accounts.Register(r.Context(), auth.RegisterRequest{
		Email:        req.Email,
		Password:     req.Password,
		Confirmation: req.Confirmation,
		Kitchen:      req.Kitchen,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.startSession(w, r, u)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			req.Email, err = d.Str()
		case "password":
			req.Password, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = h.validate.Struct(req)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.startSession(w, r, u)
}

// startSession issues a token for u, sets the cookie and returns the token so
// that non-browser clients can send it as a Bearer token.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, u *auth.User) {
	token, s, err := h.sessions.Issue(r.Context(), u.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.setSessionCookie(w, token, s.ExpiresAt)
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("user")
		encodeUser(e, u)
		e.FieldStart("token")
		e.Str(token)
		e.FieldStart("expires_at")
		encodeTime(e, s.ExpiresAt)
	})
}

// logout revokes the current session. It succeeds for anonymous requests.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if raw := sessionToken(r); raw != "" {
		if err := h.sessions.Revoke(r.Context(), raw); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	h.clearSessionCookie(w)
	writeSuccess(w, nil)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	u, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, func(e *jx.Encoder) {
		e.FieldStart("user")
		encodeUser(e, u)
	})
}
