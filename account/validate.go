package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Identity holds the user-chosen identifying fields of a new account.
type Identity struct {
	Username string `validate:"required,alphanum,min=5,max=30"`
	Email    string `validate:"required,email,max=254"`
}

// ValidateIdentity checks username and email shape.
func ValidateIdentity(id Identity) error {
	return describe(validate.Struct(id))
}

// ValidateEmail checks a single address.
func ValidateEmail(email string) error {
	return describe(validate.Var(email, "required,email,max=254"))
}

func describe(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if field == "" {
			field = "value"
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}
