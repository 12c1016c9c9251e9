package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/pvs/pkg/config"
	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/preview"
)

// officeExtensions are the document formats handled by the office converter.
var officeExtensions = []string{
	"dot", "docm", "dotx", "dotm", "psw", "doc", "xls", "ppt", "wpd",
	"wps", "csv", "sdw", "sgl", "vor", "docx", "xlsx", "pptx", "xlsm",
	"xltx", "xltm", "xlt", "xlw", "dif", "rtf", "pxl", "pps", "ppsx",
	"odt", "ods", "odp",
}

// OfficeBackend converts office documents through an out-of-process
// converter speaking to a LibreOffice listener. The converter takes an input
// path (or bytes on stdin with the extension declared, when the input is not
// visible to the listener) and writes the PDF to stdout.
//
// The listener is a shared process supervised externally; transport-level
// failures are retried a bounded number of times and each invocation runs
// under its own wall-clock timeout.
type OfficeBackend struct {
	cfg   config.OfficeConfig
	run   CommandRunner
	pdf   *PDFBackend
	instr instrumentation
}

// NewOfficeBackend builds the office backend. pdf receives the produced
// document when the caller wants an image.
func NewOfficeBackend(cfg config.OfficeConfig, pdf *PDFBackend, metrics *observability.Metrics, logger *observability.Logger) *OfficeBackend {
	return &OfficeBackend{
		cfg:   cfg,
		run:   Run,
		pdf:   pdf,
		instr: instrumentation{name: "office", metrics: metrics, logger: logger},
	}
}

func (b *OfficeBackend) Name() string         { return "office" }
func (b *OfficeBackend) Extensions() []string { return officeExtensions }
func (b *OfficeBackend) Formats() []string {
	return []string{preview.FormatImage, preview.FormatPDF}
}

func (b *OfficeBackend) Preview(ctx context.Context, req *preview.Request) (err error) {
	defer b.instr.observe(req.Format, time.Now(), &err)

	if err := checkFormat(b, req.Format); err != nil {
		return err
	}

	out, err := b.convert(ctx, req)
	if err != nil {
		return err
	}

	if req.Format == preview.FormatPDF {
		req.SetDst(req.NewRef(out))
		return nil
	}

	// The produced PDF becomes the new input; the PDF backend renders a
	// page and hands off to the image backend for sizing.
	req.SetSrc(req.NewRef(out))
	return b.pdf.Preview(ctx, req)
}

// convert invokes the converter with bounded retries, surfacing the last
// error when they are exhausted. Only transport-level failures are retried;
// a document the converter rejects will not convert better a second time.
func (b *OfficeBackend) convert(ctx context.Context, req *preview.Request) (string, error) {
	attempts := b.cfg.Retry
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		out, err := b.convertOnce(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !transient(err) {
			return "", err
		}
		if b.instr.logger != nil {
			b.instr.logger.WithError(err).Warnf("office conversion attempt %d/%d failed", i+1, attempts)
		}
	}
	return "", fmt.Errorf("%w: %v", preview.ErrTransport, lastErr)
}

// convertOnce runs one converter invocation under the per-call timeout.
func (b *OfficeBackend) convertOnce(ctx context.Context, req *preview.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	args := []string{
		"--host", b.cfg.Addr,
		"--port", strconv.Itoa(b.cfg.Port),
		"--convert-to", "pdf",
	}

	var stdin *os.File
	if req.Src().IsShared() {
		// The listener can read the shared tree directly.
		args = append(args, req.Src().Path())
	} else {
		// Pipe the bytes and declare the type; the listener never sees the
		// temp path.
		args = append(args, "--input-ext", req.Extension(), "-")
		f, err := os.Open(req.Src().Path())
		if err != nil {
			return "", fmt.Errorf("open %s: %w", req.Src().Path(), err)
		}
		defer f.Close()
		stdin = f
	}

	out, err := tempFile("pvs-office-*.pdf")
	if err != nil {
		return "", err
	}

	dst, err := os.OpenFile(out, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		os.Remove(out)
		return "", fmt.Errorf("open output: %w", err)
	}

	stderr, runErr := b.run(callCtx, fileOrNil(stdin), dst, b.cfg.Command, args...)
	closeErr := dst.Close()

	if runErr != nil {
		os.Remove(out)
		return "", fmt.Errorf("office convert %s: %w: %s", req.Name(), runErr, tail(stderr))
	}
	if closeErr != nil {
		os.Remove(out)
		return "", closeErr
	}

	fi, err := os.Stat(out)
	if err != nil || fi.Size() == 0 {
		os.Remove(out)
		return "", fmt.Errorf("office convert %s: empty output: %s", req.Name(), tail(stderr))
	}
	return out, nil
}

// fileOrNil avoids handing the runner a typed nil reader.
func fileOrNil(f *os.File) io.Reader {
	if f == nil {
		return nil
	}
	return f
}

// transient reports whether an office failure is worth retrying: the
// listener was unreachable or the call timed out, both of which an external
// supervisor may fix by restarting it.
func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "connection reset", "could not connect", "timed out", "deadline exceeded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
