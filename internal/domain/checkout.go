package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator настраивает валидатор так, чтобы в ошибках фигурировали
// имена полей из JSON, а не имена полей Go-структуры
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CheckoutRequest представляет запрос на создание checkout-сессии.
// Не персистится: валидируется и отбрасывается после создания сессии.
type CheckoutRequest struct {
	PriceID       string `json:"priceId" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"omitempty,email"`
	SuccessURL    string `json:"successUrl" validate:"required,http_url"`
	CancelURL     string `json:"cancelUrl" validate:"required,http_url"`
}

// Validate проверяет обязательные поля и формат URL-ов.
// Возвращает ValidationErrors со всеми невалидными полями сразу.
func (r CheckoutRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var ferrs validator.ValidationErrors
	if !errors.As(err, &ferrs) {
		return err
	}

	var errs ValidationErrors
	for _, ferr := range ferrs {
		errs.Add(ferr.Field(), validationMessage(ferr))
	}
	return errs
}

// validationMessage переводит тег валидатора в сообщение для клиента
func validationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "http_url":
		return "must be an absolute URL"
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %s validation", err.Tag())
	}
}

// CheckoutSession представляет созданную провайдером hosted checkout-сессию.
// Авторитетная запись о сессии принадлежит провайдеру, локально не хранится.
type CheckoutSession struct {
	ID          string `json:"id"`
	RedirectURL string `json:"url"`
}
