package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/pvs/pkg/config"
	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/preview"
)

// videoExtensions are the container and codec names the ffmpeg demuxer
// recognizes.
var videoExtensions = []string{
	"3g2", "3gp", "4xm", "a64", "aac", "ac3", "act", "adf", "adts", "adx",
	"aea", "afc", "aiff", "alaw", "alsa", "amr", "anm", "apc", "ape",
	"aqtitle", "asf", "ast", "au", "avi", "avm2", "avr", "avs", "bfi",
	"bink", "bit", "bmv", "boa", "brstm", "c93", "caf", "cdg", "cdxl",
	"daud", "dfa", "dirac", "divx", "dnxhd", "dsicin", "dts", "dtshd",
	"dvd", "dxa", "ea", "ea_cdata", "eac3", "epaf", "f32be", "f32le",
	"f4v", "film_cpk", "filmstrip", "fli", "flic", "flc", "flv", "frm",
	"g722", "g723_1", "g729", "gxf", "h261", "h263", "h264", "hds", "hevc",
	"hls", "idf", "iff", "ismv", "iss", "iv8", "ivf", "jv", "latm",
	"lavfi", "lmlm4", "loas", "lvf", "lxf", "m4v", "mgsts", "microdvd",
	"mjpeg", "mkv", "mlp", "mm", "mmf", "mov", "mp4", "m4a", "mj2", "mp2",
	"mpeg", "mpegts", "mpg", "mpjpeg", "mpl2", "mpsub", "mtv", "mv", "mvi",
	"mxf", "mxg", "nsv", "null", "nut", "nuv", "ogg", "ogv", "oma",
	"opus", "oss", "paf", "pjs", "pmp", "psp", "psxstr", "pva", "pvf",
	"qcp", "r3d", "rl2", "rm", "roq", "rpl", "rsd", "rso", "rtp", "rtsp",
	"s16be", "s16le", "s24be", "s24le", "s32be", "s32le", "s8", "sami",
	"sap", "sbg", "sdl", "sdp", "sdr2", "segment", "shn", "siff",
	"smjpeg", "smk", "smush", "sol", "sox", "svcd", "swf", "tak", "tee",
	"thp", "tmv", "truehd", "vc1", "vcd", "v4l2", "vivo", "vmd", "vob",
	"voc", "vplayer", "vqf", "w64", "wc3movie", "webm", "webvtt", "wmv",
	"wsaud", "wsvqa", "wtv", "wv", "xa", "xbin", "xmv", "xwma", "yop",
}

const (
	// animationFrames is how many frames the animated preview samples,
	// roughly three per second of footage.
	animationFrames = 15
	// frameDelay is the per-frame display time in hundredths of a second
	// (333 ms).
	frameDelay = 33
	// compositeParallelism bounds concurrent frame compositing.
	compositeParallelism = 4
)

// VideoBackend builds previews of video files: an animated GIF sampled from
// the opening seconds for image output, or a single midpoint frame wrapped
// as a one-page PDF. Frames are extracted by ffmpeg and composited
// in-process under a film-strip overlay.
type VideoBackend struct {
	ffmpeg  string
	ffprobe string
	overlay string

	run   CommandRunner
	image *ImageBackend
	instr instrumentation
}

// NewVideoBackend builds the video backend. overlay is the film-strip image
// composited over every frame; a missing overlay degrades to plain frames.
func NewVideoBackend(engines config.EnginesConfig, overlay string, img *ImageBackend, metrics *observability.Metrics, logger *observability.Logger) *VideoBackend {
	return &VideoBackend{
		ffmpeg:  engines.FFmpeg,
		ffprobe: engines.FFprobe,
		overlay: overlay,
		run:     Run,
		image:   img,
		instr:   instrumentation{name: "video", metrics: metrics, logger: logger},
	}
}

func (b *VideoBackend) Name() string         { return "video" }
func (b *VideoBackend) Extensions() []string { return videoExtensions }
func (b *VideoBackend) Formats() []string {
	return []string{preview.FormatImage, preview.FormatPDF}
}

// Preview requires the all-pages range; a video has no page addressing.
func (b *VideoBackend) Preview(ctx context.Context, req *preview.Request) (err error) {
	defer b.instr.observe(req.Format, time.Now(), &err)

	if err := checkFormat(b, req.Format); err != nil {
		return err
	}
	if err := requirePages(req, preview.AllPages); err != nil {
		return err
	}

	meta, err := b.probe(ctx, req.Src().Path())
	if err != nil {
		return err
	}

	if req.Format == preview.FormatPDF {
		return b.previewPDF(ctx, req, meta)
	}
	return b.previewAnimation(ctx, req, meta)
}

// previewAnimation samples frames at roughly three per second, composites
// the film overlay over each and encodes an endlessly looping GIF.
func (b *VideoBackend) previewAnimation(ctx context.Context, req *preview.Request, meta videoMeta) error {
	scratch, err := os.MkdirTemp("", "pvs-video-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	paths, err := b.extractFrames(ctx, req.Src().Path(), scratch, meta.nth(), 0, animationFrames)
	if err != nil {
		return err
	}

	frames, err := b.composite(ctx, paths, req.Width, req.Height)
	if err != nil {
		return err
	}

	anim := &gif.GIF{LoopCount: 0}
	for _, frame := range frames {
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, frameDelay)
	}

	out, err := tempFile("pvs-video-*.gif")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(out, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		os.Remove(out)
		return err
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		os.Remove(out)
		return fmt.Errorf("%w: encode animation: %v", preview.ErrInternal, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(out)
		return err
	}

	req.SetDst(req.NewRef(out))
	return nil
}

// previewPDF grabs a single frame near the midpoint, flattens it over white
// and hands the raster to the image backend to wrap as a one-page PDF.
func (b *VideoBackend) previewPDF(ctx context.Context, req *preview.Request, meta videoMeta) error {
	scratch, err := os.MkdirTemp("", "pvs-video-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	paths, err := b.extractFrames(ctx, req.Src().Path(), scratch, 1, meta.frames/2, 1)
	if err != nil {
		return err
	}

	frame, err := imaging.Open(paths[0])
	if err != nil {
		return fmt.Errorf("%w: decode frame: %v", preview.ErrInternal, err)
	}

	flat := imaging.New(frame.Bounds().Dx(), frame.Bounds().Dy(), color.White)
	flat = imaging.Overlay(flat, frame, image.Pt(0, 0), 1.0)

	out, err := tempFile("pvs-frame-*.png")
	if err != nil {
		return err
	}
	if err := imaging.Save(flat, out); err != nil {
		os.Remove(out)
		return fmt.Errorf("%w: save frame: %v", preview.ErrInternal, err)
	}

	req.SetSrc(req.NewRef(out))
	req.Pages = preview.SinglePage
	req.PagesExplicit = true
	return b.image.Preview(ctx, req)
}

// videoMeta is the slice of stream metadata the pipeline needs.
type videoMeta struct {
	frames int
	fps    float64
}

// nth is the sampling stride for roughly three frames per second.
func (m videoMeta) nth() int {
	n := int(m.fps / 3)
	if n < 1 {
		n = 1
	}
	return n
}

// probe reads the first video stream's frame count and rate with ffprobe.
func (b *VideoBackend) probe(ctx context.Context, path string) (videoMeta, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_frames,avg_frame_rate,duration",
		"-of", "json",
		path,
	}
	out, err := b.run(ctx, nil, nil, b.ffprobe, args...)
	if err != nil {
		return videoMeta{}, fmt.Errorf("%w: probe %s: %v: %s", preview.ErrInternal, path, err, tail(out))
	}

	var probed struct {
		Streams []struct {
			NbFrames     string `json:"nb_frames"`
			AvgFrameRate string `json:"avg_frame_rate"`
			Duration     string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &probed); err != nil || len(probed.Streams) == 0 {
		return videoMeta{}, fmt.Errorf("%w: no video stream in %s", preview.ErrInternal, path)
	}

	stream := probed.Streams[0]
	meta := videoMeta{}
	meta.frames, _ = strconv.Atoi(stream.NbFrames)
	meta.fps = parseRate(stream.AvgFrameRate)

	if meta.fps == 0 {
		if duration, _ := strconv.ParseFloat(stream.Duration, 64); duration > 0 && meta.frames > 0 {
			meta.fps = float64(meta.frames) / duration
		}
	}
	if meta.frames == 0 {
		if duration, _ := strconv.ParseFloat(stream.Duration, 64); duration > 0 && meta.fps > 0 {
			meta.frames = int(duration * meta.fps)
		}
	}
	return meta, nil
}

// parseRate parses ffprobe's rational frame rate, e.g. "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// extractFrames pulls count frames starting at frame start, keeping every
// nth, as PNGs in dir. Returns the extracted paths in frame order.
func (b *VideoBackend) extractFrames(ctx context.Context, src, dir string, nth, start, count int) ([]string, error) {
	filter := fmt.Sprintf(`select=gte(n\,%d)*not(mod(n\,%d))`, start, nth)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", src,
		"-vf", filter,
		"-vsync", "0",
		"-frames:v", strconv.Itoa(count),
		filepath.Join(dir, "frame-%04d.png"),
	}
	out, err := b.run(ctx, nil, nil, b.ffmpeg, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: extract frames from %s: %v: %s", preview.ErrInternal, src, err, tail(out))
	}

	paths, err := filepath.Glob(filepath.Join(dir, "frame-*.png"))
	if err != nil || len(paths) == 0 {
		return nil, fmt.Errorf("%w: no frames extracted from %s", preview.ErrInternal, src)
	}
	sort.Strings(paths)
	return paths, nil
}

// composite loads every frame, sizes it, lays the film overlay over it and
// quantizes it for GIF assembly. Frames are processed in parallel but
// returned in order.
func (b *VideoBackend) composite(ctx context.Context, paths []string, width, height int) ([]*image.Paletted, error) {
	overlay := b.loadOverlay(width, height)

	frames := make([]*image.Paletted, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(compositeParallelism)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			frame, err := imaging.Open(path)
			if err != nil {
				return fmt.Errorf("%w: decode frame %s: %v", preview.ErrInternal, path, err)
			}

			var sized image.Image
			if overlay != nil {
				// Frames adopt the overlay's dimensions so the strip lines up.
				bounds := overlay.Bounds()
				sized = imaging.Resize(frame, bounds.Dx(), bounds.Dy(), imaging.Lanczos)
				sized = imaging.Overlay(sized, overlay, image.Pt(0, 0), 1.0)
			} else {
				sized = imaging.Fit(frame, width, height, imaging.Lanczos)
			}

			paletted := image.NewPaletted(sized.Bounds(), palette.Plan9)
			draw.FloydSteinberg.Draw(paletted, sized.Bounds(), sized, image.Point{})
			frames[i] = paletted
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// loadOverlay returns the film-strip overlay shrunk to fit the requested
// size, or nil when none is configured or readable.
func (b *VideoBackend) loadOverlay(width, height int) image.Image {
	if b.overlay == "" {
		return nil
	}
	img, err := imaging.Open(b.overlay)
	if err != nil {
		if b.instr.logger != nil {
			b.instr.logger.WithError(err).Debugf("film overlay unavailable: %s", b.overlay)
		}
		return nil
	}
	// Fit never upscales, matching the shrink-only rule everywhere else.
	return imaging.Fit(img, width, height, imaging.Lanczos)
}
