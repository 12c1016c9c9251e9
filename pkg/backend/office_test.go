package backend

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/pvs/pkg/config"
	"github.com/platinummonkey/pvs/pkg/preview"
)

var testOffice = config.OfficeConfig{
	Command: "unoconvert",
	Addr:    "127.0.0.1",
	Port:    2002,
	Timeout: time.Second,
	Retry:   3,
}

func newOfficeBackendForTest(run CommandRunner) *OfficeBackend {
	image := NewImageBackend(testEngines, nil, nil)
	image.run = run
	pdf := NewPDFBackend(testEngines, image, nil, nil)
	pdf.run = run
	b := NewOfficeBackend(testOffice, pdf, nil, nil)
	b.run = run
	return b
}

func TestOfficePreviewSharedSource(t *testing.T) {
	var call fakeCall
	b := newOfficeBackendForTest(func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, arg ...string) ([]byte, error) {
		call = fakeCall{name: name, args: arg, stdin: stdin != nil}
		_, err := stdout.Write([]byte("%PDF-1.4"))
		return nil, err
	})

	req := newRequest(t, preview.FormatPDF, "letter.docx", []byte("doc-bytes"))
	defer req.Cleanup()

	require.NoError(t, b.Preview(context.Background(), req))

	assert.Equal(t, "unoconvert", call.name)
	assert.False(t, call.stdin)
	joined := strings.Join(call.args, " ")
	assert.Contains(t, joined, "--host 127.0.0.1")
	assert.Contains(t, joined, "--port 2002")
	assert.Contains(t, joined, "--convert-to pdf")
	// A source under the file root is passed by path, not piped.
	assert.Contains(t, joined, req.Src().Path())
	assert.NotContains(t, joined, "--input-ext")

	require.NotNil(t, req.Dst())
	assert.True(t, strings.HasSuffix(req.Dst().Path(), ".pdf"))
}

func TestOfficePreviewPipedSource(t *testing.T) {
	var call fakeCall
	b := newOfficeBackendForTest(func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, arg ...string) ([]byte, error) {
		call = fakeCall{name: name, args: arg, stdin: stdin != nil}
		_, err := stdout.Write([]byte("%PDF-1.4"))
		return nil, err
	})

	// The source lives outside the file root, so the converter cannot read
	// it directly and the bytes go over stdin.
	dir := t.TempDir()
	path := filepath.Join(dir, "letter.docx")
	require.NoError(t, os.WriteFile(path, []byte("doc-bytes"), 0600))
	req := preview.NewRequest(path, t.TempDir(), 320, 240, preview.FormatPDF, "/letter.docx", "letter.docx")
	defer req.Cleanup()

	require.NoError(t, b.Preview(context.Background(), req))

	assert.True(t, call.stdin)
	joined := strings.Join(call.args, " ")
	assert.Contains(t, joined, "--input-ext docx")
	assert.True(t, strings.HasSuffix(joined, " -"))
}

func TestOfficePreviewImageFormatDelegates(t *testing.T) {
	var commands []string
	b := newOfficeBackendForTest(func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, arg ...string) ([]byte, error) {
		commands = append(commands, name)
		if name == "unoconvert" {
			_, err := stdout.Write([]byte("%PDF-1.4"))
			return nil, err
		}
		return nil, nil
	})

	req := newRequest(t, preview.FormatImage, "deck.pptx", []byte("deck-bytes"))
	defer req.Cleanup()

	require.NoError(t, b.Preview(context.Background(), req))

	// Office produces the PDF, ghostscript rasterizes a page, the image
	// backend sizes it.
	assert.Equal(t, []string{"unoconvert", "gs", "magick"}, commands)
	require.NotNil(t, req.Dst())
	assert.True(t, strings.HasSuffix(req.Dst().Path(), ".gif"))
}

func TestOfficePreviewRetriesTransientFailures(t *testing.T) {
	attempts := 0
	b := newOfficeBackendForTest(func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, arg ...string) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return []byte("could not connect to the listener"), errors.New("exit status 1")
		}
		_, err := stdout.Write([]byte("%PDF-1.4"))
		return nil, err
	})

	req := newRequest(t, preview.FormatPDF, "letter.docx", []byte("doc-bytes"))
	defer req.Cleanup()

	require.NoError(t, b.Preview(context.Background(), req))
	assert.Equal(t, 3, attempts)
}

func TestOfficePreviewExhaustedRetries(t *testing.T) {
	attempts := 0
	b := newOfficeBackendForTest(func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, arg ...string) ([]byte, error) {
		attempts++
		return []byte("connection refused"), errors.New("exit status 1")
	})

	req := newRequest(t, preview.FormatPDF, "letter.docx", []byte("doc-bytes"))
	defer req.Cleanup()

	err := b.Preview(context.Background(), req)
	assert.ErrorIs(t, err, preview.ErrTransport)
	assert.Equal(t, testOffice.Retry, attempts)
}

func TestOfficePreviewDoesNotRetryDocumentFailures(t *testing.T) {
	attempts := 0
	b := newOfficeBackendForTest(func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, arg ...string) ([]byte, error) {
		attempts++
		return []byte("source file could not be loaded"), errors.New("exit status 1")
	})

	req := newRequest(t, preview.FormatPDF, "letter.docx", []byte("doc-bytes"))
	defer req.Cleanup()

	err := b.Preview(context.Background(), req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, preview.ErrTransport)
	assert.Equal(t, 1, attempts)
}

func TestOfficePreviewEmptyOutput(t *testing.T) {
	b := newOfficeBackendForTest(func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, arg ...string) ([]byte, error) {
		return nil, nil
	})

	req := newRequest(t, preview.FormatPDF, "letter.docx", []byte("doc-bytes"))
	defer req.Cleanup()

	err := b.Preview(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty output")
}

func TestTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{context.DeadlineExceeded, true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("could not connect to the listener"), true},
		{errors.New("operation timed out"), true},
		{errors.New("document is password protected"), false},
		{errors.New("exit status 1"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, transient(tc.err), "%v", tc.err)
	}
}
