package auth

import (
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Credentials carries a registration or login request. Usernames are
// 5-20 characters, passwords 8-128, both restricted to letters, digits
// and underscore.
type Credentials struct {
	Username string `validate:"required,min=5,max=20"`
	Password string `validate:"required,min=8,max=128"`
}

func ValidateCredentials(c Credentials) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Password" {
			return fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
		}
		return fmt.Errorf("%w: %v", errors.ErrInvalidUsername, err)
	}
	if !isWordlike(c.Username) {
		return errors.ErrInvalidUsername
	}
	if !isWordlike(c.Password) {
		return errors.ErrInvalidPassword
	}
	return nil
}

type groupName struct {
	Name string `validate:"required,min=3,max=30"`
}

// ValidateGroupName applies the same character set as usernames.
func ValidateGroupName(name string) error {
	if err := validate.Struct(groupName{Name: name}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidGroupName, err)
	}
	if !isWordlike(name) {
		return errors.ErrInvalidGroupName
	}
	return nil
}

func isWordlike(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
