package config

import "go.uber.org/zap"

// NewLogger returns a JSON production logger for prod and a console
// development logger otherwise.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "prod" || env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
