package preview

import (
	"path/filepath"
	"strings"
)

// Output formats accepted by the preview endpoint.
const (
	FormatImage = "image"
	FormatPDF   = "pdf"
)

// Content types of finished artifacts.
const (
	ContentTypeGIF = "image/gif"
	ContentTypePDF = "application/pdf"
)

// Request is the mutable work item for one preview. It owns its Src and Dst
// refs: assigning a replacement releases the previous ref if it was temp.
// Pipeline stages advance a request by swapping intermediates into Src
// (office produces a PDF, the PDF backend produces a PNG) until the final
// artifact lands in Dst.
type Request struct {
	Width  int
	Height int
	Format string

	// Pages is the requested page range. PagesExplicit records whether the
	// caller supplied it; backends that only accept one specific range get
	// their default applied when it was not explicit.
	Pages         PageRange
	PagesExplicit bool

	// StoreDisabled is the caller's per-request store opt-out, nil when the
	// header was absent.
	StoreDisabled *bool

	origin string
	name   string
	ext    string
	src    *PathRef
	dst    *PathRef

	fileRoot string
}

// NewRequest builds a request around the resolved input file. origin is the
// stable cache identity (server path, URL, or plugin key); name defaults to
// the basename of origin and drives backend selection.
func NewRequest(path, fileRoot string, width, height int, format, origin, name string) *Request {
	if name == "" {
		name = filepath.Base(origin)
	}
	return &Request{
		Width:    width,
		Height:   height,
		Format:   format,
		Pages:    SinglePage,
		origin:   origin,
		name:     name,
		src:      NewPathRef(path, fileRoot),
		fileRoot: fileRoot,
	}
}

// Origin returns the caller-visible identifier of the input.
func (r *Request) Origin() string { return r.origin }

// Name returns the display name of the input file.
func (r *Request) Name() string { return r.name }

// Extension returns the lowercased extension of Name. Selection is by name,
// not by Src, so intermediate conversions never change which backend owns
// the request.
func (r *Request) Extension() string {
	if r.ext == "" {
		r.ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(r.name), "."))
	}
	return r.ext
}

// ContentType returns the response content type for the requested format.
func (r *Request) ContentType() string {
	if r.Format == FormatPDF {
		return ContentTypePDF
	}
	return ContentTypeGIF
}

// Src returns the current input ref.
func (r *Request) Src() *PathRef { return r.src }

// SetSrc replaces the input, releasing the previous ref if it was temp.
// Origin and name are rebound to the new path so subsequent stages see the
// intermediate as their input.
func (r *Request) SetSrc(ref *PathRef) {
	if r.src != nil {
		r.src.Cleanup()
	}
	r.origin = ref.Path()
	r.name = filepath.Base(ref.Path())
	r.ext = ""
	r.src = ref
}

// Dst returns the produced artifact ref, nil until a backend finishes.
func (r *Request) Dst() *PathRef { return r.dst }

// SetDst replaces the artifact, releasing the previous ref if it was temp.
func (r *Request) SetDst(ref *PathRef) {
	if r.dst != nil {
		r.dst.Cleanup()
	}
	r.dst = ref
}

// NewRef builds a PathRef bound to this request's file root.
func (r *Request) NewRef(path string) *PathRef {
	return NewPathRef(path, r.fileRoot)
}

// StoreOptedOut reports whether the caller explicitly disabled storage for
// this request.
func (r *Request) StoreOptedOut() bool {
	return r.StoreDisabled != nil && *r.StoreDisabled
}

// Cleanup releases both refs. Call exactly once, after the response body has
// been flushed; stored artifacts survive because they are not temp-rooted.
func (r *Request) Cleanup() {
	if r.src != nil {
		r.src.Cleanup()
	}
	if r.dst != nil {
		r.dst.Cleanup()
	}
}
