package dto

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"sports-manager/backend/internal/engine"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators 向 gin 的校验器注册自定义标签：
// hhmm（HH:MM 锚点）与 weekday（monday…sunday）
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("gin 校验引擎不是 validator/v10")
			return
		}
		if err := v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			_, _, ok := engine.ParseAnchor(fl.Field().String())
			return ok
		}); err != nil {
			registerErr = err
			return
		}
		registerErr = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			_, ok := engine.ParseWeekday(fl.Field().String())
			return ok
		})
	})
	return registerErr
}
