package model

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// CheckSheet validates the structure of a grade snapshot (ids, weight bounds,
// duplicate evaluations). Score ranges are a business rule and are reported by
// the validation engine instead.
func CheckSheet(s GradeSheet) error {
	if err := validate.Struct(s); err != nil {
		return InputError{Err: err}
	}
	return nil
}

func CheckSection(s Section) error {
	if err := validate.Struct(s); err != nil {
		return InputError{Err: err}
	}
	return nil
}

// Validator exposes the shared instance so transport DTOs use the same rules.
func Validator() *validator.Validate { return validate }
