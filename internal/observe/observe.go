// Package observe emits per-outcome counters and duration histograms
// through the OpenTelemetry metric API. It owns no exporter; the host
// process decides whether and where measurements go.
package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cesarachcar/scraper-emails-papers/internal/resolve"
)

const meterName = "github.com/cesarachcar/scraper-emails-papers"

// Recorder publishes resolution outcomes as structured measurements,
// keyed by terminal status.
type Recorder struct {
	emails        metric.Int64Counter
	pages         metric.Int64Counter
	fetchSeconds  metric.Float64Histogram
	decodeSeconds metric.Float64Histogram
	totalSeconds  metric.Float64Histogram
}

// NewRecorder builds a Recorder against the globally registered meter
// provider. With no provider registered the instruments are no-ops.
func NewRecorder() (*Recorder, error) {
	meter := otel.Meter(meterName)

	emails, err := meter.Int64Counter(
		"harvest.emails.extracted",
		metric.WithDescription("Email addresses extracted from resolved documents"),
	)
	if err != nil {
		return nil, fmt.Errorf("emails counter: %w", err)
	}

	pages, err := meter.Int64Counter(
		"harvest.pages.scanned",
		metric.WithDescription("Document pages decoded and scanned"),
	)
	if err != nil {
		return nil, fmt.Errorf("pages counter: %w", err)
	}

	fetchSeconds, err := meter.Float64Histogram(
		"harvest.fetch.duration",
		metric.WithDescription("Document fetch duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch histogram: %w", err)
	}

	decodeSeconds, err := meter.Float64Histogram(
		"harvest.decode.duration",
		metric.WithDescription("Document decode duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("decode histogram: %w", err)
	}

	totalSeconds, err := meter.Float64Histogram(
		"harvest.resolve.duration",
		metric.WithDescription("End-to-end resolution duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("total histogram: %w", err)
	}

	return &Recorder{
		emails:        emails,
		pages:         pages,
		fetchSeconds:  fetchSeconds,
		decodeSeconds: decodeSeconds,
		totalSeconds:  totalSeconds,
	}, nil
}

// Record publishes the measurements for one outcome. Histograms for
// phases that were never reached are not recorded, so skipped phases
// never skew the distributions.
func (r *Recorder) Record(ctx context.Context, out *resolve.Outcome) {
	status := metric.WithAttributes(attribute.String("status", string(out.Status)))

	r.emails.Add(ctx, int64(len(out.Emails)), status)
	r.pages.Add(ctx, int64(out.Pages), status)
	r.totalSeconds.Record(ctx, out.Timings.Total.Seconds(), status)

	if out.Timings.Fetched {
		r.fetchSeconds.Record(ctx, out.Timings.Fetch.Seconds(), status)
	}
	if out.Timings.Decoded {
		r.decodeSeconds.Record(ctx, out.Timings.Decode.Seconds(), status)
	}
}
