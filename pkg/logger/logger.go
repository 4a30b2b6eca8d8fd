package logger

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/bibleschool-api/pkg/config"
	"github.com/noah-isme/bibleschool-api/pkg/middleware/requestid"
)

const serviceName = "bibleschool-api"

// New builds the process logger: JSON unless LOG_FORMAT=console, sampled in production.
func New(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Sampling = nil
	}

	zapCfg.Encoding = "json"
	if cfg.Log.Format == "console" {
		zapCfg.Encoding = "console"
	}

	if cfg.Log.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.InitialFields = map[string]interface{}{"service": serviceName, "env": cfg.Env}

	return zapCfg.Build()
}

// ForRequest returns l tagged with the request id carried by ctx, if any.
func ForRequest(ctx context.Context, l *zap.Logger) *zap.Logger {
	if reqID := requestid.FromContext(ctx); reqID != "" {
		return l.With(zap.String("request_id", reqID))
	}
	return l
}

// GinMiddleware logs one line per request. The route template is logged instead of the
// raw path so tokens in path parameters stay out of the logs. Routes listed in quiet
// are logged at debug; 4xx at warn and 5xx at error.
func GinMiddleware(l *zap.Logger, quiet ...string) gin.HandlerFunc {
	quietRoutes := make(map[string]struct{}, len(quiet))
	for _, r := range quiet {
		quietRoutes[r] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if route == "" {
			fields = append(fields, zap.String("path", c.Request.URL.Path))
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			l.Error("http_request", fields...)
		case status >= 400:
			l.Warn("http_request", fields...)
		default:
			if _, ok := quietRoutes[route]; ok {
				l.Debug("http_request", fields...)
				return
			}
			l.Info("http_request", fields...)
		}
	}
}
