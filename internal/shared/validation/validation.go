// Package validation はリクエストパラメータの検証ヘルパーです。
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// New は struct タグで検証する validator を返します。
func New() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// Describe はバリデーションエラーを "Field failed tag=param" をカンマでつないだ形式にまとめます。
// ValidationErrors 以外はそのまま err.Error() を返します。
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, ", ")
}
