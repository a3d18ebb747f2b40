package authapi

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
	apperrors "github.com/dark4shadow/soft-animal-platform/internal/errors"
)

const (
	minPasswordLen    = 6
	minNewPasswordLen = 8
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLen, 0)),
	)
}

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	UserType  string `json:"userType"`
	ShelterID string `json:"shelterId,omitempty"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLen, 0)),
		validation.Field(&r.UserType, validation.Required, validation.By(validRole)),
	)
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r passwordChangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword,
			validation.Required,
			validation.Length(minNewPasswordLen, 0),
			validation.By(differsFrom(r.CurrentPassword)),
		),
	)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r forgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type resetPasswordRequest struct {
	Token    string `json:"-"`
	Password string `json:"password"`
}

func (r resetPasswordRequest) Validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return apperrors.ValidationField("token", "reset link is invalid")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(minNewPasswordLen, 0)),
	)
}

type profileRequest struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

func (r profileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(1, 200)),
		validation.Field(&r.Email, is.Email),
	)
}

func validRole(value any) error {
	s, _ := value.(string)
	if _, ok := domainauth.ParseRole(s); !ok {
		return errors.New("must be volunteer, shelter or admin")
	}
	return nil
}

func differsFrom(current string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != "" && s == current {
			return errors.New("must differ from the current password")
		}
		return nil
	}
}

// normalizePhone parses a phone number in region and returns it in E.164 form.
// An empty input stays empty.
func normalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", apperrors.ValidationField("phone", "phone must be a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// validate runs v.Validate and converts ozzo errors into a field-scoped AppError.
func validate(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	if apperrors.GetCode(err) != "" {
		return err
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		keys := make([]string, 0, len(fieldErrs))
		for k := range fieldErrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		first := keys[0]
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeValidation,
			Message: fmt.Sprintf("%s %s", first, fieldErrs[first].Error()),
			Field:   first,
			Cause:   err,
		}
	}
	return apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
}
