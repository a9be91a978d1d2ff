// Package validation checks form payloads before a submission is accepted.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/skybrain/formrelay/internal/domain/model"
)

const (
	ruleMinTrim    = "mintrim"
	ruleEmailShape = "emailshape"
	messageTag     = "msg"
)

// emailPattern is the basic local@domain.tld shape.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Result is the outcome of validating one payload. Errors is empty, never nil,
// when IsValid is true.
type Result struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// Validator validates model.Fields using the struct tags on each variant.
// It holds no per-call state and is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator with the form rules registered.
func New() (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation(ruleMinTrim, minTrimmed); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrRegisterRule, ruleMinTrim, err)
	}
	if err := v.RegisterValidation(ruleEmailShape, emailShaped); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrRegisterRule, ruleEmailShape, err)
	}
	return &Validator{v: v}, nil
}

// MustNew is New for package-level setup; it panics on registration failure.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate evaluates every rule of the payload's form type and reports all
// violations together, in field order.
func (val *Validator) Validate(fields model.Fields) Result {
	if fields == nil || reflect.ValueOf(fields).IsNil() {
		return invalid("Unknown form type")
	}
	if _, ok := model.Lookup(fields.Type()); !ok {
		return invalid("Unknown form type")
	}

	err := val.v.Struct(fields)
	if err == nil {
		return Result{IsValid: true, Errors: []string{}}
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalid("Invalid submission")
	}

	typ := reflect.TypeOf(fields).Elem()
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, message(typ, fe))
	}
	return Result{IsValid: false, Errors: msgs}
}

func invalid(msg string) Result {
	return Result{IsValid: false, Errors: []string{msg}}
}

// message returns the msg tag of the failing field, or a generic line naming it.
func message(typ reflect.Type, fe validator.FieldError) string {
	if sf, ok := typ.FieldByName(fe.StructField()); ok {
		if m := sf.Tag.Get(messageTag); m != "" {
			return m
		}
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// minTrimmed implements mintrim=N: at least N characters after trimming whitespace.
func minTrimmed(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= n
}

func emailShaped(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return emailPattern.MatchString(fl.Field().String())
}
