// Package validator configures go-playground/validator with English error
// translations, JSON field names and the institutional e-mail rule.
package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// TagInstitutional restricts an e-mail to the configured institution domain.
const TagInstitutional = "institutional"

// Validator is a validator instance with its own English translator.
type Validator struct {
	*govalidator.Validate
	trans ut.Translator
}

// New builds a validator. An empty emailDomain accepts any domain.
func New(emailDomain string) *Validator {
	v := govalidator.New(govalidator.WithRequiredStructEnabled())

	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	domain := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(emailDomain), "@"))
	_ = v.RegisterValidation(TagInstitutional, func(fl govalidator.FieldLevel) bool {
		if domain == "" {
			return true
		}
		return strings.HasSuffix(strings.ToLower(fl.Field().String()), "@"+domain)
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)
	_ = v.RegisterTranslation(TagInstitutional, trans,
		func(ut ut.Translator) error {
			return ut.Add(TagInstitutional, "{0} must be an @{1} address", true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			msg, _ := ut.T(TagInstitutional, fe.Field(), domain)
			return msg
		},
	)

	return &Validator{Validate: v, trans: trans}
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func (v *Validator) TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(v.trans)
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// Bind decodes the JSON request body into dst and validates its
// `validate` tags. Returns nil on success or a translated field error map
// on failure.
func (v *Validator) Bind(c *gin.Context, dst any) map[string]string {
	if err := c.ShouldBindWith(dst, binding.JSON); err != nil {
		return v.TranslateErrors(err)
	}
	if err := v.StructCtx(c.Request.Context(), dst); err != nil {
		return v.TranslateErrors(err)
	}
	return nil
}
