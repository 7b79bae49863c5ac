package upload

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
)

// Rejection codes. Clients match on these strings.
const (
	CodeInvalidFileType     = "INVALID_FILE_TYPE"
	CodeInvalidExtension    = "INVALID_EXTENSION"
	CodeInvalidFileContent  = "INVALID_FILE_CONTENT"
	CodeLimitFileSize       = "LIMIT_FILE_SIZE"
	CodeLimitFileCount      = "LIMIT_FILE_COUNT"
	CodeLimitUnexpectedFile = "LIMIT_UNEXPECTED_FILE"
	CodeMalformedRequest    = "MALFORMED_REQUEST"
	CodeNoFile              = "NO_FILE"
)

// Default limits.
const (
	DefaultMaxFileSize int64 = 5 * 1024 * 1024
	DefaultMaxFiles          = 10
)

// ValidationError is a client error with a stable code.
type ValidationError struct {
	Code    string
	Message string
	// Limit is the numeric limit involved, for LIMIT_FILE_SIZE and
	// LIMIT_FILE_COUNT.
	Limit int64
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Policy is the set of rules an uploaded file must satisfy.
type Policy struct {
	MaxFileSize       int64
	MaxFiles          int
	AllowedMIMETypes  []string
	AllowedExtensions []string
	// VerifyContent rejects files whose sniffed type is not allowed.
	VerifyContent bool
}

// DefaultPolicy accepts JPEG, PNG, GIF and WebP images up to 5 MiB, ten per
// request.
func DefaultPolicy() Policy {
	return Policy{
		MaxFileSize:       DefaultMaxFileSize,
		MaxFiles:          DefaultMaxFiles,
		AllowedMIMETypes:  []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
	}
}

// Validate checks the declared type, the extension of originalName and
// size, in that order. It performs no I/O.
func (p Policy) Validate(declaredType, originalName string, size int64) error {
	if !p.AllowsMIMEType(declaredType) {
		return errInvalidType()
	}
	if !p.AllowsExtension(Extension(originalName)) {
		return errInvalidExtension()
	}
	if size > p.MaxFileSize {
		return errFileTooLarge(p.MaxFileSize)
	}
	return nil
}

// AllowsMIMEType reports whether mimeType is in the allowed set. Parameters
// such as "; charset=" are ignored.
func (p Policy) AllowsMIMEType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return slices.Contains(p.AllowedMIMETypes, mimeType)
}

// AllowsExtension reports whether ext (lowercase, with dot) is allowed.
func (p Policy) AllowsExtension(ext string) bool {
	return ext != "" && slices.Contains(p.AllowedExtensions, ext)
}

// AllowsName reports whether a stored object name has an allowed extension.
func (p Policy) AllowsName(name string) bool {
	return p.AllowsExtension(Extension(name))
}

// MaxRequestBytes bounds a whole multipart body: every allowed file at the
// ceiling plus 1 MiB for headers and form fields.
func (p Policy) MaxRequestBytes() int64 {
	return int64(p.MaxFiles)*p.MaxFileSize + 1<<20
}

// Extension returns the lowercased extension of name, including the dot.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func errInvalidType() *ValidationError {
	return &ValidationError{
		Code:    CodeInvalidFileType,
		Message: "Invalid file type. Only JPEG, PNG, GIF, and WEBP are allowed.",
	}
}

func errInvalidExtension() *ValidationError {
	return &ValidationError{Code: CodeInvalidExtension, Message: "Invalid file extension."}
}

func errInvalidContent(detected string) *ValidationError {
	return &ValidationError{
		Code:    CodeInvalidFileContent,
		Message: fmt.Sprintf("File content (%s) does not match an allowed image type.", detected),
	}
}

func errFileTooLarge(max int64) *ValidationError {
	return &ValidationError{
		Code:    CodeLimitFileSize,
		Message: fmt.Sprintf("File is too large. Maximum size is %s.", humanize.IBytes(uint64(max))),
		Limit:   max,
	}
}

func errTooManyFiles(max int) *ValidationError {
	return &ValidationError{
		Code:    CodeLimitFileCount,
		Message: fmt.Sprintf("Too many files. Maximum is %d files.", max),
		Limit:   int64(max),
	}
}

func errUnexpectedFile() *ValidationError {
	return &ValidationError{Code: CodeLimitUnexpectedFile, Message: "Unexpected field name in upload."}
}

func errMalformed() *ValidationError {
	return &ValidationError{Code: CodeMalformedRequest, Message: "Malformed multipart request."}
}

func errNoFile(multiple bool) *ValidationError {
	if multiple {
		return &ValidationError{Code: CodeNoFile, Message: "No files uploaded"}
	}
	return &ValidationError{Code: CodeNoFile, Message: "No file uploaded"}
}
