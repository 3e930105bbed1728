package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/models"
)

// Rules are the locale-specific checks applied to customer details.
type Rules struct {
	Regions []string
	Phone   *regexp.Regexp
}

// CustomerValidator cleans and validates checkout customer fields.
type CustomerValidator struct {
	v *validator.Validate
}

func NewCustomerValidator(r Rules) *CustomerValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	regions := make(map[string]struct{}, len(r.Regions))
	for _, s := range r.Regions {
		regions[s] = struct{}{}
	}
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("region", func(fl validator.FieldLevel) bool {
		_, ok := regions[fl.Field().String()]
		return ok
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return r.Phone != nil && r.Phone.MatchString(fl.Field().String())
	})
	return &CustomerValidator{v: v}
}

var (
	angleBrackets = regexp.MustCompile(`[<>]`)
	scriptScheme  = regexp.MustCompile(`(?i)javascript:`)
	inlineHandler = regexp.MustCompile(`(?i)on\w+=`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// Sanitize strips markup and inline script fragments from free text.
func Sanitize(s string) string {
	s = angleBrackets.ReplaceAllString(s, "")
	s = scriptScheme.ReplaceAllString(s, "")
	s = inlineHandler.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Clean sanitizes every field and normalises email case and phone spacing.
func Clean(c models.Customer) models.Customer {
	return models.Customer{
		Name:    Sanitize(c.Name),
		Email:   strings.ToLower(Sanitize(c.Email)),
		Phone:   whitespace.ReplaceAllString(Sanitize(c.Phone), ""),
		Address: Sanitize(c.Address),
		State:   Sanitize(c.State),
		City:    Sanitize(c.City),
	}
}

// Validate returns the cleaned customer, or a validation error listing
// every failing field.
func (cv *CustomerValidator) Validate(c models.Customer) (models.Customer, error) {
	c = Clean(c)
	err := cv.v.Struct(c)
	if err == nil {
		return c, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return c, fmt.Errorf("validate customer: %w", err)
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return c, apperr.Validation(fields)
}

func message(fe validator.FieldError) string {
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", label)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "email":
		return "Valid email is required"
	case "phone":
		return "Valid Nigerian phone number is required"
	case "region":
		return "Valid state is required"
	}
	return fmt.Sprintf("%s is invalid", label)
}
