package utils

import (
	"reflect"
	"strings"
	"sync"

	"trainhub_go/apperror"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

var (
	validate   *validator.Validate
	translator ut.Translator
	initOnce   sync.Once

	requiredText = "this field is required"
)

type enumValue interface {
	Valid() bool
}

func initValidator() {
	validate = validator.New()
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("enum", enumValidation)
	registerTranslation("enum", "{0} has an unsupported value", false)
	registerTranslation("required", requiredText, true)
}

func registerTranslation(tag, text string, override bool) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// enumValidation accepts any field whose type knows its own closed set.
func enumValidation(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return true
		}
		field = field.Elem()
	}
	if e, ok := field.Interface().(enumValue); ok {
		return e.Valid()
	}
	return false
}

// Validate checks v against its `validate` tags and returns an
// *apperror.ValidationError listing every failing field.
func Validate(v interface{}) error {
	initOnce.Do(initValidator)

	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]apperror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperror.FieldError{
			Field: fieldPath(fe),
			Error: fe.Translate(translator),
		})
	}
	return apperror.NewValidationError(errors.New("validation failed"), fields...)
}

// fieldPath drops the top level struct name from the namespace, so
// "BulkMarkRequest.attendance[0].status" becomes "attendance[0].status".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
