// Package logging provides the application-wide structured logger.
package logging

import (
	"go.uber.org/zap"
)

// New builds a zap logger appropriate for the environment. Production gets
// JSON output, everything else the development console encoder.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Nop returns a no-op logger for tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
