package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/platinummonkey/pvs/pkg/config"
	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/preview"
)

// pdfExtensions are the document formats Ghostscript consumes directly.
var pdfExtensions = []string{"pdf", "eps", "ps", "pm"}

// PDFBackend drives Ghostscript. For pdf output it re-emits a sub-document
// holding just the requested page range; for image output it rasterizes the
// first page of the range and delegates the sizing step to the image
// backend.
type PDFBackend struct {
	command string
	run     CommandRunner
	image   *ImageBackend
	instr   instrumentation
}

// NewPDFBackend builds the PDF backend. image receives the rasterized page
// for the final resize when the caller wants an image.
func NewPDFBackend(engines config.EnginesConfig, image *ImageBackend, metrics *observability.Metrics, logger *observability.Logger) *PDFBackend {
	return &PDFBackend{
		command: engines.Ghostscript,
		run:     Run,
		image:   image,
		instr:   instrumentation{name: "pdf", metrics: metrics, logger: logger},
	}
}

func (b *PDFBackend) Name() string         { return "pdf" }
func (b *PDFBackend) Extensions() []string { return pdfExtensions }
func (b *PDFBackend) Formats() []string {
	return []string{preview.FormatImage, preview.FormatPDF}
}

func (b *PDFBackend) Preview(ctx context.Context, req *preview.Request) (err error) {
	defer b.instr.observe(req.Format, time.Now(), &err)

	if err := checkFormat(b, req.Format); err != nil {
		return err
	}

	// Ghostscript accepts an empty file and produces an empty artifact,
	// which breaks everything downstream. Reject it up front.
	if size, err := req.Src().Size(); err != nil || size == 0 {
		return fmt.Errorf("%w: invalid file size 0", preview.ErrBadInput)
	}

	if req.Format == preview.FormatPDF {
		out, err := tempFile("pvs-pdf-*.pdf")
		if err != nil {
			return err
		}
		if err := b.ghostscript(ctx, req, "pdfwrite", out, req.Pages); err != nil {
			os.Remove(out)
			return err
		}
		req.SetDst(req.NewRef(out))
		return nil
	}

	// Image output rasterizes exactly one page: the first of the range.
	pages := preview.PageRange{First: req.Pages.First, Last: req.Pages.First}
	if pages.First < 1 {
		pages = preview.SinglePage
	}

	out, err := tempFile("pvs-pdf-*.png")
	if err != nil {
		return err
	}
	if err := b.ghostscript(ctx, req, "png16m", out, pages); err != nil {
		os.Remove(out)
		return err
	}

	// The page raster becomes the new input; the image backend finishes the
	// resize and canvas step.
	req.SetSrc(req.NewRef(out))
	req.Pages = preview.SinglePage
	req.PagesExplicit = true
	return b.image.Preview(ctx, req)
}

// ghostscript runs the engine with the standard argument set. When a page
// range was limited and the engine mentions FirstPage or LastPage in its
// output, the range lies outside the document.
func (b *PDFBackend) ghostscript(ctx context.Context, req *preview.Request, device, outfile string, pages preview.PageRange) error {
	args := []string{"-dNOPAUSE", "-dBATCH", "-dSAFER", "-sDEVICE=" + device}

	if !pages.IsAll() {
		args = append(args,
			fmt.Sprintf("-dFirstPage=%d", pages.First),
			fmt.Sprintf("-dLastPage=%d", pages.Last))
	}

	dpi := calcDPI(req.Width, req.Height)
	args = append(args,
		fmt.Sprintf("-r%dx%d", dpi, dpi),
		"-o", outfile,
		req.Src().Path())

	output, err := b.run(ctx, nil, nil, b.command, args...)

	if !pages.IsAll() && (bytes.Contains(output, []byte("FirstPage")) || bytes.Contains(output, []byte("LastPage"))) {
		return fmt.Errorf("%w: %d-%d", preview.ErrInvalidPage, pages.First, pages.Last)
	}
	if err != nil {
		return fmt.Errorf("%w: ghostscript %s: %v: %s", preview.ErrInternal, req.Name(), err, tail(output))
	}
	return nil
}

// calcDPI picks the rendering resolution for a requested size, assuming a
// letter-sized page. The larger per-axis requirement is rounded up to a
// multiple of 144 and halved, producing a tight but not blurry raster.
func calcDPI(width, height int) int {
	dpi := float64(width) / 8.5
	if h := float64(height) / 11; h > dpi {
		dpi = h
	}
	return (int(dpi)/144*144 + 144) / 2
}
