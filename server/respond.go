package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// fail writes the standard error body. code is omitted when empty.
func fail(c *gin.Context, status int, message, code string) {
	body := gin.H{"success": false, "message": message}
	if code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}

// internal logs err and answers 500 with the message under key. In
// development the body also carries the error text and its stack.
func (s *Server) internal(c *gin.Context, err error, key string) {
	_ = c.Error(err)
	s.logger.Error("request error", "path", c.Request.URL.Path, "requestID", c.GetString(requestIDKey), "err", err)

	body := gin.H{"success": false, "message": s.tr(c).T(key, nil)}
	if s.cfg.IsDevelopment() {
		body["error"] = err.Error()
		body["stack"] = fmt.Sprintf("%+v", err)
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, body)
}
