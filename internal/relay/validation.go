package relay

import (
	"strings"
	"sync"

	"stage-manager/internal/stage"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	maxOwnerLength   = 128
	maxMessageBytes  = 1 << 20
	maxObjectsPerSet = 2000
)

var validatorOnce sync.Once

func registerValidators() {
	validatorOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = engine.RegisterValidation("stagescope", func(fl validator.FieldLevel) bool {
			return stage.Scope(fl.Field().String()).Persistent()
		})
		_ = engine.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
			return validIdent(fl.Field().String())
		})
	})
}

// validIdent accepts session and owner ids: printable, no whitespace, no
// key separator.
func validIdent(value string) bool {
	if value == "" || len(value) > maxOwnerLength {
		return false
	}
	if strings.ContainsAny(value, ": \t\r\n/") {
		return false
	}
	for _, r := range value {
		if r < 0x21 || r == 0x7f {
			return false
		}
	}
	return true
}
