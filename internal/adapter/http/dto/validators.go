package dto

import (
	"html"
	"reflect"
	"strings"

	"kiosk-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("money", validateMoney)
		_ = v.RegisterValidation("account_ident_type", validateAccountIdentType)
		_ = v.RegisterValidation("product_ident_type", validateProductIdentType)
	}
}

// validateMoney accepts decimal strings with at most two fractional digits.
// The sign is checked by the ledger, which reports InvalidAmount.
func validateMoney(fl validator.FieldLevel) bool {
	_, err := domain.ParseAmount(fl.Field().String())
	return err == nil
}

func validateAccountIdentType(fl validator.FieldLevel) bool {
	return domain.AccountIdentType(fl.Field().String()).Valid()
}

func validateProductIdentType(fl validator.FieldLevel) bool {
	return domain.ProductIdentType(fl.Field().String()).Valid()
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
