package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var reDataURI = regexp.MustCompile(`(?i)^data:[^,]*;base64,`)

// Валидатор стороны: LEFT или RIGHT без учёта регистра
func validatorSide(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}
	switch strings.ToUpper(strings.TrimSpace(field.String())) {
	case "LEFT", "RIGHT":
		return true
	}
	return false
}

// Валидатор изображения в base64: либо data URI, либо «голый» base64 без пробелов.
// Переводы строк допустимы, декодер base64 их пропускает
func validatorDataURI(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}
	value := strings.TrimSpace(field.String())
	if value == "" {
		return false
	}
	if loc := reDataURI.FindStringIndex(value); loc != nil {
		value = value[loc[1]:]
	}
	return value != "" && !strings.ContainsAny(value, " \t,")
}
