package loader

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"jimshazmatremoval.com.au/auburn-web/internal/requestctx"
)

const instrumentationName = "jimshazmatremoval.com.au/auburn-web/internal/loader"

var (
	// ErrFileProtocol marks pages opened from disk, where fragments cannot be fetched.
	ErrFileProtocol = errors.New("cannot load components when opening files directly")
	// ErrEmptyFragment marks a response whose body is blank.
	ErrEmptyFragment = errors.New("component file is empty")
)

// StatusError reports a non-2xx fragment response.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

// Result is the outcome of one Fetch call.
type Result struct {
	OK   bool
	HTML string
	Err  error
	// Path is the path requested by the caller; Served is the path whose body was mounted.
	Path   string
	Served string
}

const fileAdvisoryPanel = `<div class="component-error component-error--file" role="alert" style="background: #ffebee; color: #c62828; padding: 20px; text-align: center; border: 2px solid #ef5350; margin: 10px; border-radius: 5px;"><strong>Error:</strong> Cannot load components when opening files directly.<br>Please serve the site over HTTP (for example with <code>web serve</code>).</div>`

// FileAdvisoryBanner is prepended to <body> when a page is assembled under the file protocol.
const FileAdvisoryBanner = `<div class="file-protocol-warning" role="alert" style="background: #fff3cd; color: #856404; padding: 15px; text-align: center; border-bottom: 2px solid #ffeeba; position: fixed; top: 0; left: 0; right: 0; z-index: 9999;">&#9888;&#65039; Please serve this page over HTTP to view it properly (for example with <code>web serve</code>).</div>`

// Fetcher retrieves fragments and mounts them, recovering every failure into an error panel.
type Fetcher struct {
	source  Source
	tracer  trace.Tracer
	results metric.Int64Counter
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*fetcherOptions)

type fetcherOptions struct {
	tracer trace.Tracer
	meter  metric.Meter
}

// WithTracer overrides the tracer used for fetch spans.
func WithTracer(t trace.Tracer) FetcherOption {
	return func(o *fetcherOptions) { o.tracer = t }
}

// WithMeter overrides the meter used for fetch counters.
func WithMeter(m metric.Meter) FetcherOption {
	return func(o *fetcherOptions) { o.meter = m }
}

// NewFetcher builds a Fetcher over source.
func NewFetcher(source Source, opts ...FetcherOption) (*Fetcher, error) {
	if source == nil {
		return nil, errors.New("loader: fetcher requires a source")
	}
	o := fetcherOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	if o.meter == nil {
		o.meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	results, err := o.meter.Int64Counter(
		"loader.fetch.results",
		metric.WithDescription("Fragment fetch outcomes by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("loader: register fetch metric: %w", err)
	}
	return &Fetcher{source: source, tracer: o.tracer, results: results}, nil
}

// Fetch loads the fragment at p into the mount element mountID of page. It performs exactly one
// mount mutation: the fragment on success, an advisory or error panel otherwise. Failures are
// reported through Result and never returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, page *Page, mountID, p string) Result {
	ctx, span := f.tracer.Start(ctx, "loader.fetch", trace.WithAttributes(
		attribute.String("loader.mount", mountID),
		attribute.String("loader.path", p),
	))
	defer span.End()
	logger := requestctx.Logger(ctx).With(zap.String("mount", mountID), zap.String("path", p))

	loc := page.Location()
	if loc.Protocol == ProtocolFile {
		f.mount(ctx, page, mountID, fileAdvisoryPanel)
		f.record(ctx, span, mountID, "file_protocol", ErrFileProtocol)
		logger.Warn("fragment not fetched under file protocol")
		return Result{Err: ErrFileProtocol, Path: p}
	}

	body, err := f.attempt(ctx, loc, p)
	if err == nil {
		if mountErr := f.mount(ctx, page, mountID, body); mountErr != nil {
			f.record(ctx, span, mountID, "mount_failed", mountErr)
			return Result{Err: mountErr, Path: p}
		}
		f.record(ctx, span, mountID, "ok", nil)
		return Result{OK: true, HTML: body, Path: p, Served: p}
	}
	logger.Warn("fragment fetch failed; retrying alternate path", zap.Error(err))

	alt := strings.Replace(p, "components/", "./components/", 1)
	altBody, altErr := f.attempt(ctx, loc, alt)
	if altErr == nil {
		if mountErr := f.mount(ctx, page, mountID, altBody); mountErr != nil {
			f.record(ctx, span, mountID, "mount_failed", mountErr)
			return Result{Err: mountErr, Path: p}
		}
		f.record(ctx, span, mountID, "retry_ok", nil)
		logger.Info("fragment loaded from alternate path", zap.String("alt_path", alt))
		return Result{OK: true, HTML: altBody, Path: p, Served: alt}
	}
	logger.Warn("alternate fragment path also failed", zap.String("alt_path", alt), zap.Error(altErr))

	_ = f.mount(ctx, page, mountID, ErrorPanel(err, p))
	f.record(ctx, span, mountID, "failed", err)
	return Result{Err: err, Path: p}
}

// ErrorPanel renders the visible in-place failure notice for a fragment.
func ErrorPanel(err error, p string) string {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	var b strings.Builder
	b.WriteString(`<div class="component-error" role="alert" style="background: #ffebee; color: #c62828; padding: 20px; border: 2px solid #ef5350; margin: 10px; border-radius: 5px;">`)
	b.WriteString(`<strong>Error loading component:</strong> `)
	b.WriteString(html.EscapeString(reason))
	b.WriteString(`<br><small>Path tried: `)
	b.WriteString(html.EscapeString(p))
	b.WriteString(`</small></div>`)
	return b.String()
}

func (f *Fetcher) attempt(ctx context.Context, loc Location, p string) (string, error) {
	resp, err := f.source.Get(ctx, loc.Reference(p))
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &StatusError{Status: resp.Status}
	}
	body := string(resp.Body)
	if strings.TrimSpace(body) == "" {
		return "", ErrEmptyFragment
	}
	return body, nil
}

func (f *Fetcher) mount(ctx context.Context, page *Page, mountID, markup string) error {
	if err := page.SetMount(mountID, markup); err != nil {
		requestctx.Logger(ctx).Error("mount fragment", zap.String("mount", mountID), zap.Error(err))
		return err
	}
	return nil
}

func (f *Fetcher) record(ctx context.Context, span trace.Span, mountID, result string, err error) {
	span.SetAttributes(attribute.String("loader.result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, result)
	}
	f.results.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mount", mountID),
		attribute.String("result", result),
	))
}
