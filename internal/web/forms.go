package web

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"cryptex/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shopspring/decimal"
)

var errNotDecimal = errors.New("amount is not a decimal")

// amountMessages are the form messages shown for amount validation errors.
var amountMessages = map[error]string{
	errNotDecimal:              "Not a valid decimal value.",
	models.ErrAmountTooPrecise: "Sadly we only support up to 7 digits after the decimal point",
	models.ErrAmountOutOfRange: "Sadly we only support values from range 0.0000001 to 100000",
}

// RegistrationForm is the sign up form.
type RegistrationForm struct {
	Email           string `form:"email" binding:"required,email"`
	Password        string `form:"password" binding:"required"`
	ConfirmPassword string `form:"confirm_password" binding:"required,eqfield=Password"`
}

// LoginForm is the sign in form.
type LoginForm struct {
	Email    string `form:"email" binding:"required,email"`
	Password string `form:"password" binding:"required"`
}

// BalanceForm adds or edits a balance. Coin is the coin id.
type BalanceForm struct {
	Coin   string `form:"coin" binding:"required,numeric"`
	Amount string `form:"amount" binding:"required,coinamount"`
}

// FormErrors maps form field names to a message.
type FormErrors map[string]string

var (
	validatorOnce sync.Once
	translator    ut.Translator
	validatorErr  error
)

// setupValidator registers the coinamount rule and the form messages on gin's
// validator engine. It is safe to call more than once.
func setupValidator() (ut.Translator, error) {
	validatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorErr = errors.New("unexpected validator engine")
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})

		if err := v.RegisterValidation("coinamount", func(fl validator.FieldLevel) bool {
			return amountError(fl.Field().String()) == nil
		}); err != nil {
			validatorErr = fmt.Errorf("failed to register coinamount: %w", err)
			return
		}

		locale := en.New()
		uni := ut.New(locale, locale)
		trans, _ := uni.GetTranslator("en")
		if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
			validatorErr = fmt.Errorf("failed to register translations: %w", err)
			return
		}

		messages := map[string]string{
			"required": "This field is required.",
			"email":    "Invalid email address.",
			"numeric":  "Not a valid choice.",
		}
		for tag, msg := range messages {
			tag, msg := tag, msg
			_ = v.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
				return ut.Add(tag, msg, true)
			}, func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T(tag)
				return t
			})
		}

		_ = v.RegisterTranslation("eqfield", trans, func(ut ut.Translator) error {
			return ut.Add("eqfield", "Field must be equal to {0}.", true)
		}, func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T("eqfield", strings.ToLower(fe.Param()))
			return t
		})

		_ = v.RegisterTranslation("coinamount", trans, func(ut ut.Translator) error {
			return nil
		}, func(_ ut.Translator, fe validator.FieldError) string {
			if msg, ok := amountMessages[amountError(fmt.Sprint(fe.Value()))]; ok {
				return msg
			}
			return "Invalid amount."
		})

		translator = trans
	})
	return translator, validatorErr
}

// amountError reports why s is not an acceptable balance amount.
func amountError(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return errNotDecimal
	}
	return models.ValidateAmount(d)
}

// formErrors converts a binding error into per-field messages.
func formErrors(err error, trans ut.Translator) FormErrors {
	errs := FormErrors{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["form"] = "Invalid input."
		return errs
	}
	for _, fe := range verrs {
		if _, seen := errs[fe.Field()]; seen {
			continue
		}
		errs[fe.Field()] = fe.Translate(trans)
	}
	return errs
}
