// Package coordinator orchestrates preview generation: store lookup, backend
// dispatch through bounded worker pools, store population and the icon
// fallback. It is the single place that decides whether a pipeline error is
// surfaced to the caller or recovered with fallback artwork.
package coordinator

import (
	"context"
	"errors"
	"io"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/pvs/pkg/async"
	"github.com/platinummonkey/pvs/pkg/backend"
	"github.com/platinummonkey/pvs/pkg/icons"
	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/preview"
	"github.com/platinummonkey/pvs/pkg/store"
)

var tracer = otel.Tracer("pvs/coordinator")

// iconContentType is the media type of raw fallback artwork.
const iconContentType = "image/png"

// Result describes a finished preview. Exactly one of three shapes:
// a redirect (RedirectURL set), a stored artifact (Stored set, suffix for
// X-Accel handoff), or a temp artifact to stream and delete.
type Result struct {
	Req *preview.Request

	// Stored is set when Dst lives in the store tree; StoreSuffix is its
	// path relative to the store base.
	Stored      bool
	StoreSuffix string

	// Icon marks fallback artwork instead of a real conversion.
	Icon bool

	// RedirectURL, when non-empty, short-circuits the response into a 302.
	RedirectURL string

	// ContentType of the artifact body.
	ContentType string
}

// Coordinator runs requests through the pipeline.
type Coordinator struct {
	registry   *backend.Registry
	store      *store.Store
	icons      *icons.Icons
	pool       *async.WorkerPool
	officePool *async.WorkerPool

	group   singleflight.Group
	metrics *observability.Metrics
	logger  *observability.Logger
}

// New builds a coordinator. officePool may be nil, in which case office
// conversions share the default pool. pool may be nil only in tests.
func New(registry *backend.Registry, st *store.Store, ic *icons.Icons, pool, officePool *async.WorkerPool, metrics *observability.Metrics, logger *observability.Logger) *Coordinator {
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return &Coordinator{
		registry:   registry,
		store:      st,
		icons:      ic,
		pool:       pool,
		officePool: officePool,
		metrics:    metrics,
		logger:     logger,
	}
}

// Generate produces the preview for req. On success the artifact is in
// req.Dst; the caller owns the request's cleanup after the response body has
// been flushed.
func (c *Coordinator) Generate(ctx context.Context, req *preview.Request) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "coordinator.Generate")
	span.SetAttributes(
		attribute.String("preview.format", req.Format),
		attribute.Int("preview.width", req.Width),
		attribute.Int("preview.height", req.Height),
		attribute.String("preview.extension", req.Extension()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	hit, key := c.store.Get(req)
	if hit {
		span.SetAttributes(attribute.Bool("store.hit", true))
		c.countPreview(req)
		return c.finish(req), nil
	}

	if key == "" {
		err = c.convert(ctx, req)
	} else {
		err = c.convertShared(ctx, req, key)
	}
	if err != nil {
		return c.fallback(ctx, req, err)
	}

	c.countPreview(req)
	return c.finish(req), nil
}

// convert selects the backend for the request and runs it on a pool slot.
func (c *Coordinator) convert(ctx context.Context, req *preview.Request) error {
	b, err := c.registry.Select(req.Extension())
	if err != nil {
		return err
	}
	return c.dispatch(ctx, b, req)
}

// convertShared collapses concurrent conversions of the same store key: one
// caller converts and populates the store, waiters then read their artifact
// back out of it. A waiter that still misses (the leader's put hit a full
// disk) converts on its own.
func (c *Coordinator) convertShared(ctx context.Context, req *preview.Request, key string) error {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if err := c.convert(ctx, req); err != nil {
			return nil, err
		}
		c.store.Put(key, req)
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		if req.Dst() != nil {
			// We were the leader; the artifact is ours already.
			return nil
		}
		if hit, _ := c.store.Get(req); hit {
			return nil
		}
		if err := c.convert(ctx, req); err != nil {
			return err
		}
		c.store.Put(key, req)
		return nil
	case <-ctx.Done():
		c.group.Forget(key)
		return ctx.Err()
	}
}

// dispatch runs the backend on the pool that bounds its concurrency.
func (c *Coordinator) dispatch(ctx context.Context, b backend.Backend, req *preview.Request) error {
	pool := c.pool
	if b.Name() == "office" && c.officePool != nil {
		pool = c.officePool
	}
	if pool == nil {
		return b.Preview(ctx, req)
	}
	return pool.Do(ctx, func(taskCtx context.Context) error {
		return b.Preview(taskCtx, req)
	})
}

// fallback decides whether convErr is recoverable with fallback artwork.
// Caller mistakes (bad input, page out of range, missing file) and format
// misconfiguration always surface; for the rest an icon is served when one
// resolves, and the original error otherwise.
func (c *Coordinator) fallback(ctx context.Context, req *preview.Request, convErr error) (*Result, error) {
	if errors.Is(convErr, preview.ErrBadInput) ||
		errors.Is(convErr, preview.ErrInvalidPage) ||
		errors.Is(convErr, preview.ErrNotFound) ||
		errors.Is(convErr, preview.ErrInvalidFormat) {
		return nil, convErr
	}

	if c.icons == nil || !c.icons.Enabled() {
		return nil, convErr
	}

	ext := req.Extension()
	if ext == "" {
		ext = icons.DefaultName
	}

	if url := c.icons.RedirectURL(ext, req.Width, req.Height); url != "" {
		c.logger.WithError(convErr).Debugf("conversion failed, redirecting to icon for %q", ext)
		return &Result{Req: req, Icon: true, RedirectURL: url}, nil
	}

	path, ok := c.icons.Resolve(ext, req.Width, req.Height)
	if !ok {
		return nil, convErr
	}
	c.logger.WithError(convErr).Debugf("conversion failed, serving icon for %q", ext)

	req.SetSrc(req.NewRef(path))
	if c.icons.ResizeRequested() {
		if b, err := c.registry.Select("png"); err == nil {
			req.Pages = preview.SinglePage
			req.PagesExplicit = true
			if err := c.dispatch(ctx, b, req); err == nil {
				return &Result{Req: req, Icon: true, ContentType: req.ContentType()}, nil
			}
			// The raw icon still serves if sizing it failed.
			c.logger.Debugf("icon resize failed for %q, serving as-is", ext)
		}
	}

	req.SetDst(req.NewRef(path))
	return &Result{Req: req, Icon: true, ContentType: iconContentType}, nil
}

// finish wraps a successful request, noting whether its artifact was placed
// in the store.
func (c *Coordinator) finish(req *preview.Request) *Result {
	res := &Result{Req: req, ContentType: req.ContentType()}
	if c.store.Enabled() && req.Dst() != nil {
		if suffix, ok := c.store.Suffix(req.Dst().Path()); ok {
			res.Stored = true
			res.StoreSuffix = suffix
		}
	}
	return res
}

func (c *Coordinator) countPreview(req *preview.Request) {
	if c.metrics != nil {
		c.metrics.PreviewsTotal.WithLabelValues(
			req.Format,
			strconv.Itoa(req.Width),
			strconv.Itoa(req.Height),
		).Inc()
	}
}
