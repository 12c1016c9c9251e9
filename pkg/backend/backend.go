// Package backend implements the preview conversion pipeline: a registry of
// format backends (office, image, video, pdf) that turn a source file into
// the requested artifact. Backends compose by swapping intermediates into
// the request's Src: office produces a PDF, the PDF backend rasterizes a
// page, and the image backend performs the final resize and canvas step.
//
// The conversion engines themselves are external processes (ImageMagick,
// Ghostscript, ffmpeg, an office converter); backends own the invocation,
// retry and temp-file discipline around them.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/preview"
)

// Backend converts a source file into the requested artifact. A backend
// declares the input extensions it recognizes and the output formats it
// supports; Preview fails with ErrInvalidFormat for anything else.
//
// Preview must leave the finished artifact in req.Dst as a temp ref. It must
// never delete req.Src itself; ownership transfers through the request's
// Src/Dst assignment.
type Backend interface {
	Name() string
	Extensions() []string
	Formats() []string
	Preview(ctx context.Context, req *preview.Request) error
}

// Registry maps input extensions to backends. Built once at startup and
// read-only afterwards.
type Registry struct {
	backends []Backend
	byExt    map[string]Backend
}

// NewRegistry builds a registry. Earlier backends win when extension sets
// overlap, so registration order matters.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: backends, byExt: make(map[string]Backend)}
	for _, b := range backends {
		for _, ext := range b.Extensions() {
			if _, taken := r.byExt[ext]; !taken {
				r.byExt[ext] = b
			}
		}
	}
	return r
}

// Select returns the backend handling the given input extension.
func (r *Registry) Select(extension string) (Backend, error) {
	if b, ok := r.byExt[extension]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", preview.ErrUnsupportedType, extension)
}

// Backends returns the registered backends in registration order.
func (r *Registry) Backends() []Backend { return r.backends }

// checkFormat validates the requested output format against a backend's set.
func checkFormat(b Backend, format string) error {
	for _, f := range b.Formats() {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("%w: %s backend does not produce %q", preview.ErrInvalidFormat, b.Name(), format)
}

// requirePages enforces the single page range a backend accepts. When the
// caller did not name pages explicitly the backend's range is applied as the
// default; an explicit mismatch is an invalid page request.
func requirePages(req *preview.Request, want preview.PageRange) error {
	if !req.PagesExplicit {
		req.Pages = want
		return nil
	}
	if req.Pages != want {
		return fmt.Errorf("%w: %d-%d", preview.ErrInvalidPage, req.Pages.First, req.Pages.Last)
	}
	return nil
}

// slowConversion is the duration above which a finished conversion is logged
// at warn instead of debug.
const slowConversion = 5 * time.Second

// instrumentation carries the per-backend observability hooks. observe is
// deferred around every Preview call.
type instrumentation struct {
	name    string
	metrics *observability.Metrics
	logger  *observability.Logger
}

func (i instrumentation) observe(format string, start time.Time, err *error) {
	elapsed := time.Since(start)

	if i.metrics != nil {
		i.metrics.ConversionsTotal.WithLabelValues(i.name, format).Inc()
		i.metrics.ConversionDuration.WithLabelValues(i.name, format).Observe(elapsed.Seconds())
		if *err != nil {
			i.metrics.ConversionErrorsTotal.WithLabelValues(i.name, format).Inc()
		}
	}

	if i.logger != nil {
		log := i.logger.WithFields(map[string]interface{}{
			"backend":  i.name,
			"format":   format,
			"duration": elapsed.String(),
		})
		if *err != nil {
			log = log.WithError(*err)
		}
		level := observability.DebugLevel
		if elapsed > slowConversion {
			level = observability.WarnLevel
		}
		log.Logf(level, "%s conversion finished", i.name)
	}
}
