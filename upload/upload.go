// Package upload validates and stores images sent as multipart form data.
//
// A Processor handles one request in two phases. First the whole request is
// checked against the transport limits (body size, per-file size, file
// count, field names); nothing is written when any of those fail. Then each
// file is checked against the Policy and accepted files are written to the
// storage backend under a generated name.
//
// Example:
//
//	processor := upload.NewProcessor(store, upload.DefaultPolicy())
//	processor.OnSuccess(func(ctx context.Context, result upload.Result) {
//	    logger.Info("stored", "file", result.Filename)
//	})
//
//	result, err := processor.ProcessSingle(r.Context(), r)
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	pkgerrors "github.com/pkg/errors"

	"github.com/kdsmith18542/clickfit/upload/storage"
)

// Form field names.
const (
	FieldSingle        = "image"
	FieldMultiple      = "images"
	FieldMultipleArray = "images[]"
)

// Files up to this size stay in memory while the form is parsed; larger
// ones spill to temporary files.
const maxMemory = 32 << 20

// Hook types for post-processing
type OnSuccessHook func(ctx context.Context, result Result)
type OnErrorHook func(ctx context.Context, result Result, err error)

// Result describes one stored file.
type Result struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	Path         string    `json:"path"`
	DeclaredType string    `json:"-"`
	DetectedType string    `json:"-"`
	Checksum     string    `json:"-"`
	UploadedAt   time.Time `json:"-"`
}

// Rejection reports a file that failed per-file validation.
type Rejection struct {
	OriginalName string `json:"originalName"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

// Batch is the outcome of a multi-file upload.
type Batch struct {
	Stored   []Result
	Rejected []Rejection
}

// Processor validates and stores uploads.
type Processor struct {
	storage   storage.Storage
	policy    Policy
	namer     Namer
	now       func() time.Time
	onSuccess []OnSuccessHook
	onError   []OnErrorHook
}

// NewProcessor creates a processor writing to store under policy.
func NewProcessor(store storage.Storage, policy Policy) *Processor {
	return &Processor{
		storage: store,
		policy:  policy,
		namer:   GenerateFilename,
		now:     time.Now,
	}
}

// OnSuccess registers a hook that runs after a file is stored. Hooks run in
// registration order.
func (p *Processor) OnSuccess(hook OnSuccessHook) {
	p.onSuccess = append(p.onSuccess, hook)
}

// OnError registers a hook that runs when a file is rejected or cannot be
// stored.
func (p *Processor) OnError(hook OnErrorHook) {
	p.onError = append(p.onError, hook)
}

// SetNamer replaces the filename generator.
func (p *Processor) SetNamer(namer Namer) {
	p.namer = namer
}

// Policy returns the active policy.
func (p *Processor) Policy() Policy {
	return p.policy
}

// ProcessSingle stores the one file sent under the "image" field.
func (p *Processor) ProcessSingle(ctx context.Context, r *http.Request) (*Result, error) {
	files, err := p.parse(r, []string{FieldSingle}, 1, errUnexpectedFile)
	if err != nil {
		return nil, err
	}
	defer r.MultipartForm.RemoveAll()

	if len(files) == 0 {
		return nil, errNoFile(false)
	}

	fh := files[0]
	if err := p.check(ctx, fh); err != nil {
		return nil, err
	}
	stored, err := p.store(ctx, []*multipart.FileHeader{fh})
	if err != nil {
		return nil, err
	}
	return &stored[0], nil
}

// ProcessMultiple stores every acceptable file sent under "images" or
// "images[]". Files failing per-file validation are reported in
// Batch.Rejected while their siblings are stored. When every file is
// rejected the first rejection is returned as the error.
func (p *Processor) ProcessMultiple(ctx context.Context, r *http.Request) (*Batch, error) {
	files, err := p.parse(r, []string{FieldMultiple, FieldMultipleArray}, p.policy.MaxFiles, func() *ValidationError {
		return errTooManyFiles(p.policy.MaxFiles)
	})
	if err != nil {
		return nil, err
	}
	defer r.MultipartForm.RemoveAll()

	if len(files) == 0 {
		return nil, errNoFile(true)
	}

	batch := &Batch{}
	var accepted []*multipart.FileHeader
	var firstErr *ValidationError
	for _, fh := range files {
		if err := p.check(ctx, fh); err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				return nil, err
			}
			if firstErr == nil {
				firstErr = verr
			}
			batch.Rejected = append(batch.Rejected, Rejection{
				OriginalName: fh.Filename,
				Code:         verr.Code,
				Message:      verr.Message,
			})
			continue
		}
		accepted = append(accepted, fh)
	}

	if len(accepted) == 0 {
		return nil, firstErr
	}

	batch.Stored, err = p.store(ctx, accepted)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// parse reads the multipart body and applies the request-wide limits. The
// returned headers belong to r.MultipartForm, which the caller must release
// with RemoveAll when err is nil.
func (p *Processor) parse(r *http.Request, fields []string, maxFiles int, tooMany func() *ValidationError) ([]*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, p.policy.MaxRequestBytes())

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, errFileTooLarge(p.policy.MaxFileSize)
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			r.MultipartForm = &multipart.Form{}
			return nil, nil
		default:
			return nil, errMalformed()
		}
	}

	allowed := make(map[string]bool, len(fields))
	for _, f := range fields {
		allowed[f] = true
	}

	for field := range r.MultipartForm.File {
		if !allowed[field] {
			r.MultipartForm.RemoveAll()
			return nil, errUnexpectedFile()
		}
	}
	var files []*multipart.FileHeader
	for _, f := range fields {
		files = append(files, r.MultipartForm.File[f]...)
	}

	if len(files) > maxFiles {
		r.MultipartForm.RemoveAll()
		return nil, tooMany()
	}
	for _, fh := range files {
		if fh.Size > p.policy.MaxFileSize {
			r.MultipartForm.RemoveAll()
			return nil, errFileTooLarge(p.policy.MaxFileSize)
		}
	}
	return files, nil
}

// check applies the per-file policy and, when enabled, content sniffing.
func (p *Processor) check(ctx context.Context, fh *multipart.FileHeader) error {
	observer().OnUploadStart(ctx, fh.Filename, fh.Size)

	err := p.policy.Validate(fh.Header.Get("Content-Type"), fh.Filename, fh.Size)
	if err == nil && p.policy.VerifyContent {
		var detected string
		detected, err = sniff(fh)
		if err == nil && !p.allowsDetected(detected) {
			err = errInvalidContent(detected)
		}
	}
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			observer().OnUploadRejected(ctx, fh.Filename, verr.Code)
		}
		p.fireError(ctx, Result{OriginalName: fh.Filename, Size: fh.Size}, err)
	}
	return err
}

func (p *Processor) allowsDetected(detected string) bool {
	for m := mimetype.Lookup(detected); m != nil; m = m.Parent() {
		if p.policy.AllowsMIMEType(m.String()) {
			return true
		}
	}
	return p.policy.AllowsMIMEType(detected)
}

// store writes every accepted file. When one write fails the files already
// written for this request are removed again.
func (p *Processor) store(ctx context.Context, files []*multipart.FileHeader) ([]Result, error) {
	results := make([]Result, 0, len(files))
	for _, fh := range files {
		start := time.Now()
		result, err := p.storeOne(ctx, fh)
		if err != nil {
			observer().OnUploadEnd(ctx, result.Filename, fh.Size, time.Since(start), false)
			p.fireError(ctx, result, err)
			for _, done := range results {
				_ = p.storage.Delete(ctx, done.Filename)
			}
			return nil, err
		}
		observer().OnUploadEnd(ctx, result.Filename, result.Size, time.Since(start), true)
		results = append(results, result)
	}

	for _, result := range results {
		for _, hook := range p.onSuccess {
			hook(ctx, result)
		}
	}
	return results, nil
}

func (p *Processor) storeOne(ctx context.Context, fh *multipart.FileHeader) (Result, error) {
	result := Result{
		Filename:     p.namer(fh.Filename),
		OriginalName: fh.Filename,
		DeclaredType: fh.Header.Get("Content-Type"),
	}

	file, err := fh.Open()
	if err != nil {
		return result, pkgerrors.Wrap(err, "failed to open uploaded file")
	}
	defer file.Close()

	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return result, pkgerrors.Wrap(err, "failed to detect content type")
	}
	result.DetectedType = detected.String()
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return result, pkgerrors.Wrap(err, "failed to rewind uploaded file")
	}

	hash := sha256.New()
	counter := &countingReader{r: io.TeeReader(file, hash)}
	name, err := p.storage.Store(ctx, result.Filename, counter)
	if err != nil {
		return result, pkgerrors.Wrapf(err, "failed to store %s", result.Filename)
	}

	result.Filename = name
	result.Size = counter.n
	result.Path = p.storage.GetURL(name)
	result.Checksum = hex.EncodeToString(hash.Sum(nil))
	result.UploadedAt = p.now()
	return result, nil
}

func (p *Processor) fireError(ctx context.Context, result Result, err error) {
	for _, hook := range p.onError {
		hook(ctx, result, err)
	}
}

func sniff(fh *multipart.FileHeader) (string, error) {
	file, err := fh.Open()
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to open uploaded file")
	}
	defer file.Close()
	m, err := mimetype.DetectReader(file)
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to detect content type")
	}
	return m.String(), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
