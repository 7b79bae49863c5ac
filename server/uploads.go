package server

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kdsmith18542/clickfit/messages"
	"github.com/kdsmith18542/clickfit/upload"
	"github.com/kdsmith18542/clickfit/upload/storage"
)

func (s *Server) uploadSingle(c *gin.Context) {
	tr := s.tr(c)
	result, err := s.processor.ProcessSingle(c.Request.Context(), c.Request)
	if err != nil {
		s.uploadError(c, err, false, "upload.failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      tr.T("upload.success", nil),
		"filename":     result.Filename,
		"originalName": result.OriginalName,
		"size":         result.Size,
		"path":         result.Path,
	})
}

func (s *Server) uploadMultiple(c *gin.Context) {
	tr := s.tr(c)
	batch, err := s.processor.ProcessMultiple(c.Request.Context(), c.Request)
	if err != nil {
		s.uploadError(c, err, true, "upload.multiple_failed")
		return
	}

	body := gin.H{
		"success": true,
		"message": tr.T("upload.multiple_success", map[string]interface{}{"Count": len(batch.Stored)}),
		"files":   batch.Stored,
	}
	if len(batch.Rejected) > 0 {
		rejected := make([]upload.Rejection, len(batch.Rejected))
		for i, rej := range batch.Rejected {
			rej.Message = validationMessage(tr, &upload.ValidationError{Code: rej.Code, Message: rej.Message}, true)
			rejected[i] = rej
		}
		body["rejected"] = rejected
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) uploadError(c *gin.Context, err error, multiple bool, key string) {
	var verr *upload.ValidationError
	if errors.As(err, &verr) {
		fail(c, http.StatusBadRequest, validationMessage(s.tr(c), verr, multiple), verr.Code)
		return
	}
	s.internal(c, err, key)
}

// validationMessage renders the localized text for a validation code,
// keeping the error's own message when no bundle entry exists.
func validationMessage(tr *messages.Translator, verr *upload.ValidationError, multiple bool) string {
	key := "upload." + verr.Code
	if verr.Code == upload.CodeNoFile && multiple {
		key = "upload.NO_FILES"
	}
	params := map[string]interface{}{
		"MaxSize":  tr.FormatBytes(verr.Limit),
		"MaxFiles": verr.Limit,
	}
	if msg, ok := tr.Lookup(key, params); ok {
		return msg
	}
	return verr.Message
}

func (s *Server) listImages(c *gin.Context) {
	images, err := s.gallery.List(c.Request.Context())
	if err != nil {
		s.internal(c, err, "gallery.list_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(images),
		"files":   images,
	})
}

func (s *Server) deleteImage(c *gin.Context) {
	tr := s.tr(c)
	err := s.gallery.Delete(c.Request.Context(), c.Param("filename"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": tr.T("gallery.deleted", nil)})
	case errors.Is(err, storage.ErrInvalidName):
		fail(c, http.StatusBadRequest, tr.T("gallery.invalid_filename", nil), "")
	case errors.Is(err, storage.ErrNotExist):
		fail(c, http.StatusNotFound, tr.T("gallery.not_found", nil), "")
	default:
		s.internal(c, err, "gallery.delete_failed")
	}
}

// serveImage streams a stored image. Only names the gallery would list are
// served.
func (s *Server) serveImage(c *gin.Context) {
	tr := s.tr(c)
	name := c.Param("filename")
	if err := storage.ValidateName(name); err != nil {
		fail(c, http.StatusBadRequest, tr.T("gallery.invalid_filename", nil), "")
		return
	}
	if !s.processor.Policy().AllowsName(name) {
		fail(c, http.StatusNotFound, tr.T("gallery.not_found", nil), "")
		return
	}

	ctx := c.Request.Context()
	info, err := s.storage.Stat(ctx, name)
	if err != nil {
		s.objectError(c, err)
		return
	}
	rc, err := s.storage.Open(ctx, name)
	if err != nil {
		s.objectError(c, err)
		return
	}
	defer rc.Close()

	c.Header("X-Content-Type-Options", "nosniff")
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(c.Writer, c.Request, name, info.ModTime, rs)
		return
	}

	contentType := mime.TypeByExtension(upload.Extension(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Last-Modified", info.ModTime.UTC().Format(http.TimeFormat))
	if c.Request.Method == http.MethodHead {
		c.Header("Content-Type", contentType)
		c.Status(http.StatusOK)
		return
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, nil)
}

func (s *Server) objectError(c *gin.Context, err error) {
	tr := s.tr(c)
	switch {
	case errors.Is(err, storage.ErrNotExist):
		fail(c, http.StatusNotFound, tr.T("gallery.not_found", nil), "")
	case errors.Is(err, storage.ErrInvalidName):
		fail(c, http.StatusBadRequest, tr.T("gallery.invalid_filename", nil), "")
	default:
		s.internal(c, err, "api.internal")
	}
}
