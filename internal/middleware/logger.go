package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// RequestLogger writes one access log line per request to log.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	log = log.With(zap.String("component", "http"))
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			}
			if id := ConsumerID(c); id != "" {
				fields = append(fields, zap.String("consumer_id", id))
			}
			switch {
			case v.Error != nil:
				log.Error("request", append(fields, zap.Error(v.Error))...)
			case v.Status >= 500:
				log.Error("request", fields...)
			default:
				log.Info("request", fields...)
			}
			return nil
		},
	})
}
