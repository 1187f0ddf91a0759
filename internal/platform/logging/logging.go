package logging

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"library-backend/internal/platform/config"
)

const (
	HeaderRequestID = "X-Request-ID"
	ctxLoggerKey    = "logger"
)

// New builds the process logger from config. Unknown levels fall back to info.
func New(c config.LogConfig) *logrus.Logger {
	return NewWithWriter(c, os.Stdout)
}

func NewWithWriter(c config.LogConfig, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	if c.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Middleware tags every request with an id and logs one line when it completes.
func Middleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(HeaderRequestID, rid)

		entry := logger.WithField("request_id", rid)
		c.Set(ctxLoggerKey, entry)

		c.Next()

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}
		if uid, ok := c.Get("user_id"); ok {
			fields["user_id"] = uid
		}
		e := entry.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			e.Error("request")
		case c.Writer.Status() >= 400:
			e.Warn("request")
		default:
			e.Info("request")
		}
	}
}

// FromGin returns the request-scoped logger set by Middleware, or the standard logger.
func FromGin(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(ctxLoggerKey); ok {
		if l, ok := v.(logrus.FieldLogger); ok {
			return l
		}
	}
	return logrus.StandardLogger()
}
