package resolve

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cesarachcar/scraper-emails-papers/internal/fetch"
	"github.com/cesarachcar/scraper-emails-papers/internal/scan"
	"github.com/cesarachcar/scraper-emails-papers/internal/sink"
)

// Origin labels recorded alongside each email, distinguishing a
// standard fetch from one completed through the trust-escalation path.
const (
	OriginNormal   = "pdf normal"
	OriginFallback = "pdf fallback"
)

var pdfMagic = []byte("%PDF-")

// Fetcher performs bounded single retrievals.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Response, error)
	GetWithRoots(ctx context.Context, url string, roots *x509.CertPool) (*fetch.Response, error)
}

// Escalator captures an unverified peer chain for a one-shot retry.
type Escalator interface {
	Escalate(ctx context.Context, host string, port int) (*fetch.TrustMaterial, error)
}

// Decoder turns document bytes into page-level text.
type Decoder interface {
	Decode(data []byte) ([]string, error)
}

// RecordSink receives one row per extracted email.
type RecordSink interface {
	Append(rec sink.Record) error
}

// RestrictedSink receives candidate URLs skipped by the publisher policy.
type RestrictedSink interface {
	Append(url, id string) error
}

// Config holds the resolution endpoints and policy.
type Config struct {
	// MetadataBaseURL is prepended to the identifier to form the
	// metadata lookup URL.
	MetadataBaseURL string
	// ContactEmail is appended to metadata lookups as the registered
	// contact required by the metadata service.
	ContactEmail string
	// RestrictedPublisher is matched case-sensitively as a substring
	// of the metadata publisher field. Matching items are diverted to
	// the restricted sink instead of fetched.
	RestrictedPublisher string
}

// Resolver drives one Item from metadata lookup to a terminal Outcome.
// Safe for concurrent use; all mutable state is per-call.
type Resolver struct {
	cfg        Config
	fetcher    Fetcher
	escalator  Escalator
	decoder    Decoder
	records    RecordSink
	restricted RestrictedSink
	logger     *slog.Logger
}

// New creates a Resolver. A nil logger falls back to slog.Default.
func New(
	cfg Config,
	fetcher Fetcher,
	escalator Escalator,
	decoder Decoder,
	records RecordSink,
	restricted RestrictedSink,
	logger *slog.Logger,
) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cfg:        cfg,
		fetcher:    fetcher,
		escalator:  escalator,
		decoder:    decoder,
		records:    records,
		restricted: restricted,
		logger:     logger.With("component", "resolver"),
	}
}

// metadata mirrors the fields consumed from the metadata service
// response. Everything else in the body is ignored.
type metadata struct {
	Publisher      string `json:"publisher"`
	BestOALocation *struct {
		URLForPDF string `json:"url_for_pdf"`
		URL       string `json:"url"`
	} `json:"best_oa_location"`
	DOIURL string `json:"doi_url"`
}

func (m *metadata) candidateURL() string {
	if loc := m.BestOALocation; loc != nil {
		if loc.URLForPDF != "" {
			return loc.URLForPDF
		}
		if loc.URL != "" {
			return loc.URL
		}
	}
	return m.DOIURL
}

// Resolve runs the state machine for item. It always returns a
// terminal Outcome: collaborator errors map to failure statuses and
// panics are recovered into processing_failed. Nothing escapes to the
// orchestrator.
func (r *Resolver) Resolve(ctx context.Context, item Item) (outcome Outcome) {
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(
				"unanticipated resolution failure",
				"id", item.ID,
				"sequence", item.Sequence,
				"panic", p,
			)
			outcome = Outcome{ItemID: item.ID, Sequence: item.Sequence, Status: StatusProcessingFailed}
		}
		outcome.Timings.Total = time.Since(start)
	}()

	outcome = r.resolve(ctx, item)
	return outcome
}

func (r *Resolver) resolve(ctx context.Context, item Item) Outcome {
	outcome := Outcome{ItemID: item.ID, Sequence: item.Sequence}

	// Metadata lookup.
	metaResp, err := r.fetcher.Get(ctx, r.metadataURL(item.ID))
	if err != nil {
		outcome.Status = StatusFetchFailed
		return outcome
	}
	if metaResp.StatusCode == http.StatusNotFound {
		outcome.Status = StatusNotFound
		return outcome
	}
	if metaResp.StatusCode != http.StatusOK {
		outcome.Status = StatusFetchFailed
		return outcome
	}

	var meta metadata
	if err := json.Unmarshal(metaResp.Body, &meta); err != nil {
		outcome.Status = StatusDecodeFailed
		return outcome
	}

	candidate := meta.candidateURL()
	if candidate == "" {
		outcome.Status = StatusNoLocation
		return outcome
	}

	// Publisher branch: restricted publishers are never fetched. The
	// candidate URL goes to the side channel for out-of-band handling.
	if r.cfg.RestrictedPublisher != "" && strings.Contains(meta.Publisher, r.cfg.RestrictedPublisher) {
		if err := r.restricted.Append(candidate, item.ID); err != nil {
			r.logger.Error("restricted sink append failed", "id", item.ID, "error", err)
			outcome.Status = StatusProcessingFailed
			return outcome
		}
		outcome.Status = StatusWrongPublisher
		return outcome
	}

	// Document fetch, with at most one trust-escalation retry.
	origin := OriginNormal
	fetchStart := time.Now()
	docResp, err := r.fetcher.Get(ctx, candidate)
	if err != nil {
		docResp, err = r.retryWithEscalation(ctx, candidate, err)
		if err == nil {
			origin = OriginFallback
		}
	}
	outcome.Timings.Fetch = time.Since(fetchStart)
	outcome.Timings.Fetched = true
	if err != nil {
		outcome.Status = StatusFetchFailed
		return outcome
	}

	outcome.SourceHost = docResp.FinalHost
	switch {
	case docResp.StatusCode == http.StatusNotFound:
		outcome.Status = StatusNotFound
		return outcome
	case docResp.StatusCode != http.StatusOK:
		outcome.Status = StatusFetchFailed
		return outcome
	case !isDocument(docResp):
		outcome.Status = StatusNotADocument
		return outcome
	}

	// Decode and scan.
	decodeStart := time.Now()
	pages, err := r.decoder.Decode(docResp.Body)
	outcome.Timings.Decode = time.Since(decodeStart)
	outcome.Timings.Decoded = true
	if err != nil {
		outcome.Status = StatusDecodeFailed
		return outcome
	}
	outcome.Pages = len(pages)

	emails := scan.Emails(strings.Join(pages, "\n"))
	for _, email := range emails {
		rec := sink.Record{Email: email, Origin: origin, Sequence: item.Sequence}
		if err := r.records.Append(rec); err != nil {
			r.logger.Error("record sink append failed", "id", item.ID, "error", err)
			outcome.Status = StatusProcessingFailed
			return outcome
		}
	}

	// Zero extracted emails is still a successful resolution.
	outcome.Emails = emails
	outcome.Status = StatusResolved
	return outcome
}

// retryWithEscalation retries candidate once with a captured peer
// chain, but only when the original failure was trust-kind. Any other
// failure, and any failure of the escalation itself, is returned as-is
// with no further attempts.
func (r *Resolver) retryWithEscalation(ctx context.Context, candidate string, original error) (*fetch.Response, error) {
	var ferr *fetch.Error
	if !errors.As(original, &ferr) || ferr.Kind != fetch.KindTrust {
		return nil, original
	}

	host, port, err := splitHostPort(candidate)
	if err != nil {
		return nil, original
	}

	material, err := r.escalator.Escalate(ctx, host, port)
	if err != nil {
		r.logger.Warn("trust escalation failed", "host", host, "error", err)
		return nil, original
	}

	return r.fetcher.GetWithRoots(ctx, candidate, material.Pool())
}

func (r *Resolver) metadataURL(id string) string {
	return r.cfg.MetadataBaseURL + id + "?email=" + url.QueryEscape(r.cfg.ContactEmail)
}

func splitHostPort(rawURL string) (string, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, err
	}
	port := 443
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, err
		}
	}
	return u.Hostname(), port, nil
}

// isDocument reports whether resp looks like a PDF, by Content-Type or
// by leading magic bytes.
func isDocument(resp *fetch.Response) bool {
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "pdf") {
		return true
	}
	return bytes.HasPrefix(resp.Body, pdfMagic)
}
