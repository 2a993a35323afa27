// Package verify downloads candidate documents and only keeps genuine PDFs.
//
// The check ignores the declared Content-Type: the payload must begin with %PDF-.
// Error pages served with a 200 status therefore never reach disk. Strict mode
// additionally runs pdfcpu's relaxed structural validation.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pfrederiksen/fomc-docs/internal/fetch"
	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/pfrederiksen/fomc-docs/internal/meeting"
	"github.com/pfrederiksen/fomc-docs/internal/storage"
)

// DefaultMaxBytes caps a single document download
const DefaultMaxBytes = 64 << 20

// Signature is the leading byte sequence of every PDF
var Signature = []byte("%PDF-")

// DocumentFetcher retrieves binary documents
type DocumentFetcher interface {
	GetDocument(ctx context.Context, url string, limit int64) (*fetch.Response, error)
}

// Options configures a Verifier
type Options struct {
	// Store decides where saved documents live
	Store     *storage.Store
	MaxBytes  int64
	StrictPDF bool
	Logger    *logger.Logger
	Metrics   *logger.Metrics
	Now       func() time.Time
}

// Verifier fetches, checks and persists documents
type Verifier struct {
	fetcher  DocumentFetcher
	store    *storage.Store
	maxBytes int64
	strict   bool
	log      *logger.Logger
	metrics  *logger.Metrics
	now      func() time.Time
}

// New creates a Verifier writing into opts.Store, which must be set
func New(f DocumentFetcher, opts Options) *Verifier {
	v := &Verifier{
		fetcher:  f,
		store:    opts.Store,
		maxBytes: opts.MaxBytes,
		strict:   opts.StrictPDF,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if v.maxBytes <= 0 {
		v.maxBytes = DefaultMaxBytes
	}
	if v.log == nil {
		v.log = logger.Default()
	}
	if v.metrics == nil {
		v.metrics = logger.DefaultMetrics()
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// FetchAndVerify produces the outcome for one candidate. Per-document problems
// are reported through the result's Outcome; the error is reserved for
// cancellation and local write failures, which should stop the run.
func (v *Verifier) FetchAndVerify(ctx context.Context, c meeting.DocumentCandidate) (meeting.DownloadResult, error) {
	res := meeting.DownloadResult{Candidate: c, Timestamp: v.now().UTC()}
	fields := logger.Fields{"date": c.Meeting.Key(), "category": string(c.Category)}

	if !c.HasURL() {
		res.Outcome = meeting.MissingUpstream
		v.log.Info("document not published", fields)
		return res, nil
	}
	fields["url"] = c.URL

	path := v.store.DocumentPath(c.Meeting, c.Category)
	if ok, _ := FileHasSignature(path); ok {
		v.metrics.IncrCounter("verify.skipped")
		v.log.Debug("document already saved", fields)
		res.Outcome = meeting.Saved
		res.LocalPath = path
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	resp, err := v.fetcher.GetDocument(ctx, c.URL, v.maxBytes)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if errors.Is(err, fetch.ErrTooLarge) {
			return v.reject(res, fields, err.Error()), nil
		}
		res.Outcome = meeting.NetworkError
		res.Detail = err.Error()
		v.log.Warn("document download failed", mergeFields(fields, logger.Fields{"error": res.Detail}))
		return res, nil
	}

	if !HasSignature(resp.Body) {
		detail := fmt.Sprintf("payload is not a PDF (content-type %q, %d bytes)", resp.ContentType, len(resp.Body))
		return v.reject(res, fields, detail), nil
	}
	if v.strict {
		if err := ValidateStructure(resp.Body); err != nil {
			return v.reject(res, fields, err.Error()), nil
		}
	}

	if err := storage.WriteFileAtomic(path, resp.Body, 0644); err != nil {
		return res, fmt.Errorf("saving %s: %w", path, err)
	}
	v.metrics.IncrCounter("verify.saved")
	v.log.Info("document saved", mergeFields(fields, logger.Fields{"path": path, "bytes": len(resp.Body)}))

	res.Outcome = meeting.Saved
	res.LocalPath = path
	return res, nil
}

func (v *Verifier) reject(res meeting.DownloadResult, fields logger.Fields, detail string) meeting.DownloadResult {
	v.metrics.IncrCounter("verify.rejected")
	v.log.Warn("document failed verification", mergeFields(fields, logger.Fields{"reason": detail}))
	res.Outcome = meeting.VerificationFailed
	res.Detail = detail
	return res
}

func mergeFields(a, b logger.Fields) logger.Fields {
	out := make(logger.Fields, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// HasSignature reports whether data starts with the PDF signature
func HasSignature(data []byte) bool {
	return bytes.HasPrefix(data, Signature)
}

// FileHasSignature reports whether path is a non-empty file starting with the PDF signature
func FileHasSignature(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(Signature))
	if _, err := io.ReadFull(f, head); err != nil {
		return false, nil
	}
	return HasSignature(head), nil
}

var disableConfigDir sync.Once

// ValidateStructure runs pdfcpu's relaxed validation over data
func ValidateStructure(data []byte) (err error) {
	disableConfigDir.Do(api.DisableConfigDir)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid PDF structure: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("invalid PDF structure: %w", err)
	}
	return nil
}
