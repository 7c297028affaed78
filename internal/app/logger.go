package app

import (
	"go.uber.org/zap"
)

// NewLogger returns JSON logs at INFO in prod, console logs at DEBUG everywhere else.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
