// Package models defines the pharmacy records and the request and
// response bodies shared by the clinic services.
//
// Request types carry validator tags and are checked with [Validate]
// before they reach a store. Records are built from validated requests
// by constructors such as [NewMedicine] and [NewDistribution], which
// assign IDs and UTC timestamps.
package models

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks v against its validate tags. Failures are returned as
// [sserr.CodeValidation] with a "fields" detail mapping each JSON field
// name to the rule it broke.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return sserr.Wrap(err, sserr.CodeValidation, "invalid request")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = rule(fe)
	}
	return sserr.Validation("invalid request").WithDetail("fields", fields)
}

func rule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
