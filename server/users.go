package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kdsmith18542/clickfit/users"
)

// requireUsers answers 503 when no database is configured.
func (s *Server) requireUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.users == nil {
			fail(c, http.StatusServiceUnavailable, s.tr(c).T("users.db_unavailable", nil), "")
			return
		}
		c.Next()
	}
}

// userID parses the :id segment. Anything that is not a positive integer
// cannot name a user, so the caller answers 404.
func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) listUsers(c *gin.Context) {
	list, err := s.users.List(c.Request.Context())
	if err != nil {
		s.internal(c, err, "users.fetch_all_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(list), "users": list})
}

func (s *Server) getUser(c *gin.Context) {
	tr := s.tr(c)
	id, ok := userID(c)
	if !ok {
		fail(c, http.StatusNotFound, tr.T("users.not_found", nil), "")
		return
	}
	u, err := s.users.Get(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
	case errors.Is(err, users.ErrNotFound):
		fail(c, http.StatusNotFound, tr.T("users.not_found", nil), "")
	default:
		s.internal(c, err, "users.fetch_failed")
	}
}

func (s *Server) createUser(c *gin.Context) {
	tr := s.tr(c)
	var in users.NewUser
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, tr.T("users.required", nil), "")
		return
	}

	id, err := s.users.Create(c.Request.Context(), in)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"success": true, "message": tr.T("users.created", nil), "userId": id})
	case errors.Is(err, users.ErrMissingFields):
		fail(c, http.StatusBadRequest, tr.T("users.required", nil), "")
	case errors.Is(err, users.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, tr.T("users.invalid_email", nil), "")
	case errors.Is(err, users.ErrShortPassword):
		fail(c, http.StatusBadRequest, tr.T("users.short_password", nil), "")
	case errors.Is(err, users.ErrDuplicateEmail):
		fail(c, http.StatusConflict, tr.T("users.duplicate", nil), "")
	default:
		s.internal(c, err, "users.create_failed")
	}
}

func (s *Server) toggleUser(c *gin.Context) {
	s.mutateUser(c, s.users.Toggle, "users.toggled", "users.update_failed")
}

func (s *Server) deleteUser(c *gin.Context) {
	s.mutateUser(c, s.users.Delete, "users.deleted", "users.delete_failed")
}

func (s *Server) mutateUser(c *gin.Context, op func(context.Context, int64) error, okKey, failKey string) {
	tr := s.tr(c)
	id, ok := userID(c)
	if !ok {
		fail(c, http.StatusNotFound, tr.T("users.not_found", nil), "")
		return
	}
	err := op(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": tr.T(okKey, nil)})
	case errors.Is(err, users.ErrNotFound):
		fail(c, http.StatusNotFound, tr.T("users.not_found", nil), "")
	default:
		s.internal(c, err, failKey)
	}
}
