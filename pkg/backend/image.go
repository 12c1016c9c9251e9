package backend

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/platinummonkey/pvs/pkg/config"
	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/preview"
)

// imageExtensions are the raster formats handed to ImageMagick.
var imageExtensions = []string{
	"bmp", "dcx", "gif", "jpg", "jpeg", "png", "psd", "tiff", "tif", "xbm",
	"xpm",
}

// ImageBackend renders raster inputs with ImageMagick. It is also the final
// stage of every other pipeline: the PDF and video backends delegate here
// for the resize and canvas step once they hold a single raster page.
//
// The rendition: rasterize at 300 DPI, take the first frame, flatten alpha
// over white, shrink-only resize preserving aspect ratio, then composite
// centered onto a transparent canvas of the exact requested dimensions.
type ImageBackend struct {
	command string
	run     CommandRunner
	instr   instrumentation
}

// NewImageBackend builds the image backend around the configured ImageMagick
// command.
func NewImageBackend(engines config.EnginesConfig, metrics *observability.Metrics, logger *observability.Logger) *ImageBackend {
	return &ImageBackend{
		command: engines.Magick,
		run:     Run,
		instr:   instrumentation{name: "image", metrics: metrics, logger: logger},
	}
}

func (b *ImageBackend) Name() string          { return "image" }
func (b *ImageBackend) Extensions() []string  { return imageExtensions }
func (b *ImageBackend) Formats() []string     { return []string{preview.FormatImage, preview.FormatPDF} }

// Preview converts req.Src into a sized GIF or single-image PDF. Raster
// inputs have exactly one page, so any explicit range other than 1-1 is
// rejected.
func (b *ImageBackend) Preview(ctx context.Context, req *preview.Request) (err error) {
	defer b.instr.observe(req.Format, time.Now(), &err)

	if err := checkFormat(b, req.Format); err != nil {
		return err
	}
	if err := requirePages(req, preview.SinglePage); err != nil {
		return err
	}

	suffix := ".gif"
	if req.Format == preview.FormatPDF {
		suffix = ".pdf"
	}
	out, err := tempFile("pvs-image-*" + suffix)
	if err != nil {
		return err
	}

	args := []string{
		"-density", "300",
		// Only the first frame of animated or layered inputs.
		req.Src().Path() + "[0]",
		"-background", "white", "-alpha", "remove", "-alpha", "off",
		// The trailing > makes the resize shrink-only.
		"-resize", fmt.Sprintf("%dx%d>", req.Width, req.Height),
		"-background", "none", "-gravity", "center",
		"-extent", fmt.Sprintf("%dx%d", req.Width, req.Height),
		out,
	}

	output, err := b.run(ctx, nil, nil, b.command, args...)
	if err != nil {
		os.Remove(out)
		return fmt.Errorf("%w: convert %s: %v: %s", preview.ErrInternal, req.Name(), err, tail(output))
	}

	req.SetDst(req.NewRef(out))
	return nil
}

// tempFile reserves a temp file name for an engine to write into.
func tempFile(pattern string) (string, error) {
	t, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if err := t.Close(); err != nil {
		os.Remove(t.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return t.Name(), nil
}
