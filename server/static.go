package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// noRoute answers unknown API paths with a JSON 404. Other GET requests
// get the matching static asset, or index.html so the front end can route.
func (s *Server) noRoute(c *gin.Context) {
	p := c.Request.URL.Path
	if p == "/api" || strings.HasPrefix(p, "/api/") || s.static == nil ||
		(c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": s.tr(c).T("api.not_found", nil),
			"path":    c.Request.URL.RequestURI(),
		})
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name != "" && name != "index.html" {
		if fi, err := fs.Stat(s.static, name); err == nil && !fi.IsDir() {
			c.FileFromFS(name, http.FS(s.static))
			return
		}
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", s.index)
}
