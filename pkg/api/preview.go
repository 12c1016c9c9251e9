package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/platinummonkey/pvs/pkg/config"
	"github.com/platinummonkey/pvs/pkg/coordinator"
	"github.com/platinummonkey/pvs/pkg/httputil"
	"github.com/platinummonkey/pvs/pkg/plugins"
	"github.com/platinummonkey/pvs/pkg/preview"
)

// multipartMemory is the in-memory threshold for multipart parsing; larger
// uploads spill to disk.
const multipartMemory = 8 << 20

// storeDisabledHeader is the per-request store opt-out.
const storeDisabledHeader = "pvs-store-disabled"

// previewParams are the request parameters shared by the preview endpoint
// and plugin routes. The input itself (path, file or url) is resolved
// separately.
type previewParams struct {
	format        string
	width         int
	height        int
	name          string
	pages         preview.PageRange
	pagesExplicit bool
	storeDisabled *bool
}

// previewParams parses the merged query/form view. For POSTs the form body
// is parsed first so its values win over the query string.
func (s *Server) previewParams(r *http.Request) (previewParams, error) {
	if r.Method == http.MethodPost {
		if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return previewParams{}, fmt.Errorf("%w: %v", preview.ErrBadInput, err)
		}
	}

	p := previewParams{
		format: httputil.Param(r, "format", s.cfg.Preview.DefaultFormat),
		name:   httputil.Param(r, "name", ""),
	}

	width, err := httputil.ParamInt(r, "width", s.cfg.Preview.DefaultWidth)
	if err != nil {
		return previewParams{}, fmt.Errorf("%w: %v", preview.ErrBadInput, err)
	}
	height, err := httputil.ParamInt(r, "height", s.cfg.Preview.DefaultHeight)
	if err != nil {
		return previewParams{}, fmt.Errorf("%w: %v", preview.ErrBadInput, err)
	}
	p.width = httputil.ClampInt(width, s.cfg.Preview.MaxWidth)
	p.height = httputil.ClampInt(height, s.cfg.Preview.MaxHeight)

	if raw := httputil.Param(r, "pages", ""); raw != "" {
		p.pages, err = preview.ParsePages(raw, s.cfg.Preview.MaxPages)
		if err != nil {
			return previewParams{}, err
		}
		p.pagesExplicit = true
	} else {
		p.pages = preview.SinglePage
	}

	if v := r.Header.Get(storeDisabledHeader); v != "" {
		disabled := config.Boolean(v)
		p.storeDisabled = &disabled
	}

	return p, nil
}

// resolveSource picks the input from the path, file and url parameters, in
// that order of precedence.
func (s *Server) resolveSource(r *http.Request) (path, origin, name string, err error) {
	if p := httputil.Param(r, "path", ""); p != "" {
		path, origin, err = s.source.FromServerPath(p)
		return path, origin, "", err
	}

	if f, header, ferr := r.FormFile("file"); ferr == nil {
		defer f.Close()
		path, origin, err = s.source.FromUpload(r.Context(), f, header.Filename)
		return path, origin, header.Filename, err
	}

	if u := httputil.Param(r, "url", ""); u != "" {
		path, origin, err = s.source.FromURL(r.Context(), u)
		return path, origin, "", err
	}

	return "", "", "", fmt.Errorf("%w: no path, file or url provided", preview.ErrBadInput)
}

// handlePreview serves GET and POST /preview/.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	params, err := s.previewParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	path, origin, name, err := s.resolveSource(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.generate(w, r, params, path, origin, name)
}

// pluginPreview adapts a mounted plugin into a preview handler: the plugin
// resolves the route to a local file and a caller-scoped origin, the rest of
// the pipeline is shared with /preview/.
func (s *Server) pluginPreview(p plugins.Plugin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := s.previewParams(r)
		if err != nil {
			s.writeError(w, err)
			return
		}

		resolved, err := p.Resolve(r.Context(), r)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.generate(w, r, params, resolved.Path, resolved.Origin, resolved.Name)
	}
}

// generate runs one resolved input through the coordinator and writes the
// response. The request owns its temp files; they are released after the
// body has been flushed.
func (s *Server) generate(w http.ResponseWriter, r *http.Request, params previewParams, path, origin, name string) {
	if params.name != "" {
		name = params.name
	}

	req := preview.NewRequest(path, s.source.FileRoot(), params.width, params.height, params.format, origin, name)
	req.Pages = params.pages
	req.PagesExplicit = params.pagesExplicit
	req.StoreDisabled = params.storeDisabled
	defer req.Cleanup()

	res, err := s.coord.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeResult(w, r, res)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := httputil.StatusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("preview request failed")
	}
	httputil.WriteError(w, status, err)
}

// writeResult renders a coordinator result: a 302 to external icon artwork,
// an empty 200 handing the stored artifact to the fronting proxy, or the
// artifact body streamed directly.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res *coordinator.Result) {
	if res.RedirectURL != "" {
		http.Redirect(w, r, res.RedirectURL, http.StatusFound)
		return
	}

	if res.Stored && s.cfg.Store.XAccelRedirect != "" {
		s.setCacheControl(w)
		w.Header().Set("Content-Type", res.ContentType)
		w.Header().Set("X-Accel-Redirect", s.cfg.Store.XAccelRedirect+"/"+res.StoreSuffix)
		w.WriteHeader(http.StatusOK)
		return
	}

	f, err := os.Open(res.Req.Dst().Path())
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: open artifact: %v", preview.ErrInternal, err))
		return
	}
	defer f.Close()

	s.setCacheControl(w)
	w.Header().Set("Content-Type", res.ContentType)
	if fi, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	}
	if _, err := io.Copy(w, f); err != nil {
		// Headers are gone; all we can do is note the broken transfer.
		s.logger.WithError(err).Debug("artifact stream interrupted")
	}
}

// setCacheControl adds the configured max-age to success responses.
func (s *Server) setCacheControl(w http.ResponseWriter) {
	if d := s.cfg.Store.CacheControl; d > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d, public", int(d.Seconds())))
	}
}
