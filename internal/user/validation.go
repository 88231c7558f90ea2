package user

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

var validate = newValidator()

// newValidator はエラーメッセージにJSONのフィールド名を使うValidatorを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct は構造体を検証し、違反があればValidationErrorを返す。
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return model.NewValidationError(err.Error())
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return model.NewValidationError(strings.Join(msgs, "; "))
}

// validateEmail は単独のメールアドレスを検証する。
func validateEmail(email string) error {
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return model.NewValidationError(fmt.Sprintf("email の形式が不正です: %s", email))
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s は必須です", field)
	case "min":
		return fmt.Sprintf("%s は%s以上である必要があります", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s は%s以下である必要があります", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s の形式が不正です", field)
	case "oneof":
		return fmt.Sprintf("%s は %s のいずれかである必要があります", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("%s は数字のみ指定できます", field)
	case "alphanum":
		return fmt.Sprintf("%s は英数字のみ指定できます", field)
	}
	return fmt.Sprintf("%s が不正です", field)
}
