package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	FailedField string // Go namespace, e.g. CreateDocumentRequest.Items[0].Qty
	Field       string // JSON path, e.g. items[0].qty
	Tag         string
	Value       string
}

// Message renders the failure for API clients.
func (e *ErrorResponse) Message() string {
	switch e.Tag {
	case "required", "uuid_required":
		return "is required"
	case "dgt0":
		return "must be a positive number"
	case "dgte0":
		return "must not be negative"
	case "dscale4":
		return "must have at most 4 decimal places"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(e.Value, " ", ", ")
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "min":
		return fmt.Sprintf("must contain at least %s entr%s", e.Value, plural(e.Value, "y", "ies"))
	case "max":
		return fmt.Sprintf("must be at most %s", e.Value)
	case "excluded_if", "excluded_unless", "excluded_with":
		return "is not allowed here"
	default:
		return fmt.Sprintf("failed on '%s'", e.Tag)
	}
}

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})

	// Register custom validation for UUID
	validate.RegisterValidation("uuid_required", func(fl validator.FieldLevel) bool {
		if id, ok := fl.Field().Interface().(uuid.UUID); ok {
			return id != uuid.Nil
		}
		return false
	})

	// Decimals are validated on their canonical string form.
	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		switch d := v.Interface().(type) {
		case decimal.Decimal:
			return d.String()
		case decimal.NullDecimal:
			if !d.Valid {
				return nil
			}
			return d.Decimal.String()
		}
		return nil
	}, decimal.Decimal{}, decimal.NullDecimal{})

	validate.RegisterValidation("dgt0", decimalCheck(func(d decimal.Decimal) bool { return d.IsPositive() }))
	validate.RegisterValidation("dgte0", decimalCheck(func(d decimal.Decimal) bool { return !d.IsNegative() }))
	// Quantity columns are decimal(20,4).
	validate.RegisterValidation("dscale4", decimalCheck(func(d decimal.Decimal) bool { return d.Equal(d.Round(4)) }))
}

func decimalCheck(ok func(decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return false
		}
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return ok(d)
	}
}

func ValidateStruct(data interface{}) []*ErrorResponse {
	var errors []*ErrorResponse
	err := validate.Struct(data)
	if err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return []*ErrorResponse{{FailedField: "", Field: "", Tag: "invalid", Value: err.Error()}}
		}
		for _, err := range verrs {
			var element ErrorResponse
			element.FailedField = err.StructNamespace()
			element.Field = jsonPath(err.Namespace())
			element.Tag = err.Tag()
			element.Value = err.Param()
			errors = append(errors, &element)
		}
	}
	return errors
}

// FieldErrors groups messages by JSON path.
func FieldErrors(errs []*ErrorResponse) map[string][]string {
	out := make(map[string][]string, len(errs))
	for _, e := range errs {
		out[e.Field] = append(out[e.Field], e.Message())
	}
	return out
}

// jsonPath drops the root struct name from a namespace.
func jsonPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func plural(n, one, many string) string {
	if n == "1" {
		return one
	}
	return many
}
