package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/giall/hecate"
)

const maxBodyBytes = 1 << 16

var validate = validator.New(validator.WithRequiredStructEnabled())

type registerRequest struct {
	Username string `json:"username" validate:"required,alphanum,min=5,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=30"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=30"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=30"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required,min=8,max=30"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=30"`
}

type changeEmailRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required"`
}

// userResponse is the public account body returned by login, refresh and register.
type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

func userFrom(p hecate.Profile) userResponse {
	return userResponse{
		ID:        p.ID,
		Username:  p.Username,
		Email:     p.Email,
		Verified:  p.Verified,
		CreatedAt: p.CreatedAt,
	}
}

var errBadRequest = errors.New("invalid request body")

// decode reads a JSON body into dst and validates it. Any failure writes a
// 400 and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", errBadRequest.Error())
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		details := ""
		if errors.As(err, &verrs) && len(verrs) > 0 {
			details = verrs[0].Field() + " failed " + verrs[0].Tag()
		}
		writeJSON(w, http.StatusBadRequest, APIError{Code: "INVALID_INPUT", Message: "Invalid input.", Details: details})
		return false
	}
	return true
}
