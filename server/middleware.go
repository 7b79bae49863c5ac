package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kdsmith18542/clickfit/messages"
	"github.com/kdsmith18542/clickfit/observability"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestID"
	translatorKey   = "translator"
)

// requestID propagates a caller-supplied id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		keyvals := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"clientIP", c.ClientIP(),
			"requestID", c.GetString(requestIDKey),
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("request failed", keyvals...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("request rejected", keyvals...)
		default:
			s.logger.Info("request", keyvals...)
		}
	}
}

// tracing wraps each request in a span named after its route.
func tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := observability.StartSpan(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, strconv.Itoa(status))
		}
	}
}

// recovery turns a panic into the standard 500 body.
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in handler", "err", r, "path", c.Request.URL.Path, "stack", string(debug.Stack()))
				body := gin.H{"success": false, "message": s.tr(c).T("api.internal", nil)}
				if s.cfg.IsDevelopment() {
					body["message"] = fmt.Sprint(r)
					body["stack"] = string(debug.Stack())
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
			}
		}()
		c.Next()
	}
}

// locale detects the request locale once and stores the translator.
func (s *Server) locale() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(translatorKey, s.messages.Translator(c.Request))
		c.Next()
	}
}

// tr returns the request's translator, or the default locale's when the
// locale middleware has not run.
func (s *Server) tr(c *gin.Context) *messages.Translator {
	if v, ok := c.Get(translatorKey); ok {
		if t, ok := v.(*messages.Translator); ok {
			return t
		}
	}
	return s.messages.For(s.messages.DefaultLocale())
}
