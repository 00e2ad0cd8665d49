package user

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// User is the identity provider's record of a person. It is written here only
// when a session signs in.
type User struct {
	ID    string `json:"id" validate:"required,userid"`
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
	Image string `json:"image"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Ids end up inside conversation keys and channel names.
	_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		return !strings.Contains(id, "--") && !strings.ContainsAny(id, ":*?[]\\ ") &&
			!strings.HasPrefix(id, "-") && !strings.HasSuffix(id, "-")
	})
	return v
}

func (u User) Validate() error {
	return validate.Struct(u)
}
