package Controllers

import (
	"reflect"
	"strings"

	"Pitstop/Clock"
	"Pitstop/Models"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Validator checks request bodies and renders failures as English sentences.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func NewValidator() *Validator {
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	custom := []struct {
		tag     string
		fn      validator.Func
		message string
	}{
		{"date", func(fl validator.FieldLevel) bool {
			return Clock.ValidDate(fl.Field().String())
		}, "{0} must be a date in YYYY-MM-DD form"},
		{"taskType", func(fl validator.FieldLevel) bool {
			return Models.TaskType(fl.Field().String()).Valid()
		}, "{0} must be one of CLEANING, MAINTENANCE, REPAIR, CHECK"},
		{"severity", func(fl validator.FieldLevel) bool {
			return Models.Severity(fl.Field().String()).Valid()
		}, "{0} must be one of LOW, MEDIUM, HIGH, CRITICAL"},
		{"issueStatus", func(fl validator.FieldLevel) bool {
			return Models.ValidIssueStatus(fl.Field().String())
		}, "{0} must be one of OPEN, IN_PROGRESS, RESOLVED, CLOSED"},
	}
	for _, c := range custom {
		_ = v.RegisterValidation(c.tag, c.fn)
		message := c.message
		tag := c.tag
		_ = v.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error { return ut.Add(tag, message, true) },
			func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T(tag, fe.Field())
				return t
			})
	}
	return &Validator{validate: v, trans: trans}
}

// Struct returns nil or a validation error listing every failed field.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fe.Translate(v.trans))
	}
	return &Models.Error{
		Kind:    Models.KindValidation,
		Code:    "invalid_request",
		Message: strings.Join(messages, "; "),
	}
}
