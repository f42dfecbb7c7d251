package httpapi

import (
	"net/http"
)

/*
====================================
AUTH
====================================
*/

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeEngineError(w, h.log, err)
		return
	}

	if res.RateLimit != nil {
		setRateLimitHeaders(w, res.RateLimit.Limit, res.RateLimit.Remaining, res.RateLimit.ResetAt)
	}
	h.setAuthCookies(w, res.TokenPair)
	writeJSON(w, http.StatusOK, userFrom(res.Profile))
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	pair, err := h.engine.Refresh(r.Context(), token)
	if err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	h.setAuthCookies(w, *pair)

	profile, err := h.engine.Profile(r.Context(), pair.AccountID)
	if err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, userFrom(profile))
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	if err := h.engine.Logout(r.Context(), token); err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	h.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) invalidate(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	if err := h.engine.InvalidateAll(r.Context(), token); err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	h.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) magicLoginRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.engine.RequestMagicLogin(r.Context(), req.Email); err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) magicLogin(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decode(w, r, &req) {
		return
	}

	pair, err := h.engine.ConsumeMagicLogin(r.Context(), req.Token)
	if err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	h.setAuthCookies(w, *pair)

	profile, err := h.engine.Profile(r.Context(), pair.AccountID)
	if err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, userFrom(profile))
}

/*
====================================
USER
====================================
*/

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	profile, err := h.engine.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, userFrom(profile))
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.engine.VerifyEmail(r.Context(), req.Token); err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) verifyEmailRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.engine.RequestEmailVerification(r.Context(), req.Email); err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) resetPasswordRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	accountID, _ := AccountIDFromContext(r.Context())

	profile, err := h.engine.Profile(r.Context(), accountID)
	if err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, userFrom(profile))
}

func (h *handler) changeEmail(w http.ResponseWriter, r *http.Request) {
	var req changeEmailRequest
	if !decode(w, r, &req) {
		return
	}
	accountID, _ := AccountIDFromContext(r.Context())

	if err := h.engine.ChangeEmail(r.Context(), accountID, req.Email, req.Password); err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	accountID, _ := AccountIDFromContext(r.Context())

	if err := h.engine.ChangePassword(r.Context(), accountID, req.OldPassword, req.NewPassword); err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}
	accountID, _ := AccountIDFromContext(r.Context())

	if err := h.engine.DeleteAccount(r.Context(), accountID, req.Password); err != nil {
		writeEngineError(w, h.log, err)
		return
	}
	h.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}
