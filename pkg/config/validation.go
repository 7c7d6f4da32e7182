package config

import (
	"reflect"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

// Validator is implemented by configuration structs that need checks
// beyond the `required` tag. Validate runs after required-field checks.
// Errors that are not already [*sserr.Error] are wrapped with
// [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	err := walk(rv, "", "", func(f leaf) error {
		if f.tag.Get("required") == "true" && f.value.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			if _, isSSErr := sserr.AsError(err); isSSErr {
				return err
			}
			return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
		}
	}
	return nil
}
