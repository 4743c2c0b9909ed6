package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxmesh/internal/logging"
)

// RequestIDHeader заголовок, через который клиент может передать свой ID запроса
const RequestIDHeader = "X-Request-ID"

// RequestLogger снабжает каждый HTTP-запрос ID и пишет краткие логи.
type RequestLogger struct {
	logger *logging.Logger
}

// NewRequestLogger создаёт middleware; nil логгер означает логгер компонента "api"
func NewRequestLogger(logger *logging.Logger) *RequestLogger {
	if logger == nil {
		logger = logging.GetAPILogger()
	}
	return &RequestLogger{logger: logger}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			// Берём trace id из спана otelgin, если он есть
			if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
				requestID = sc.TraceID().String()
			} else {
				requestID = uuid.NewString()
			}
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		start := time.Now()
		method := c.Request.Method
		path := routePath(c)

		rl.logger.Debug("[HTTP] ▶ %s %s ip=%s id=%s", method, path, c.ClientIP(), requestID)

		c.Next()

		rl.logger.Info("[HTTP] ◀ %s %s %d %s id=%s", method, path, c.Writer.Status(), time.Since(start), requestID)
	}
}
