package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
)

// RequestValidator は echo.Validator の実装。エラーは JSON のフィールド名で 400 にする
type RequestValidator struct {
	v *validator.Validate
}

func NewValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// YYYY-MM-DD
	_ = v.RegisterValidation("civildate", func(fl validator.FieldLevel) bool {
		_, err := stay.ParseDate(fl.Field().String())
		return err == nil
	})
	return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = describe(fe)
	}
	return echo.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s は必須です", fe.Field())
	case "civildate":
		return fmt.Sprintf("%s は YYYY-MM-DD 形式で指定してください", fe.Field())
	case "min":
		return fmt.Sprintf("%s は %s 以上にしてください", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s は %s 以下にしてください", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s は [%s] のいずれかです", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s が不正です (%s)", fe.Field(), fe.Tag())
	}
}
