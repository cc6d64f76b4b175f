// Package thumbnail renders small JPEG previews of extracted media. Images
// are decoded and scaled in process; videos have one frame grabbed by
// ffmpeg under a timeout. Results are cached on disk keyed by content hash.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	"image/jpeg"
	_ "image/png"  // register PNG decoder
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/wesm/snapvault/internal/fileutil"
)

var (
	// ErrUnsupported is returned for media that cannot be previewed.
	ErrUnsupported = errors.New("unsupported media for thumbnail")

	// ErrTimeout is returned when a video frame grab exceeds its time limit.
	ErrTimeout = errors.New("thumbnail timed out")
)

// DefaultSize is the longest edge of a thumbnail in pixels.
const DefaultSize = 256

// Options configures a Generator.
type Options struct {
	CacheDir     string
	Size         int           // longest edge; 0 = DefaultSize
	VideoTimeout time.Duration // 0 = 5s
	FFmpegPath   string        // empty = "ffmpeg" from PATH
}

type kind int

const (
	kindUnknown kind = iota
	kindImage
	kindVideo
)

var extKinds = map[string]kind{
	".jpg": kindImage, ".jpeg": kindImage, ".png": kindImage, ".gif": kindImage, ".webp": kindImage,
	".mp4": kindVideo, ".mov": kindVideo, ".m4v": kindVideo, ".webm": kindVideo,
	".3gp": kindVideo, ".avi": kindVideo, ".mkv": kindVideo,
}

// Generator creates and caches thumbnails. It owns its cache directory.
type Generator struct {
	opts Options
	log  *slog.Logger
}

// New creates a Generator.
func New(opts Options, log *slog.Logger) *Generator {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.VideoTimeout <= 0 {
		opts.VideoTimeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{opts: opts, log: log}
}

// Thumbnail returns the path of a JPEG preview of the media file at src,
// creating it on first use.
func (g *Generator) Thumbnail(ctx context.Context, src string) (string, error) {
	k, err := detectKind(src)
	if err != nil {
		return "", err
	}
	hashes, err := fileutil.HashFile(src)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(g.opts.CacheDir, hashes.SHA256[:32]+"_"+strconv.Itoa(g.opts.Size)+".jpg")
	if fileutil.NonEmpty(dest) {
		return dest, nil
	}

	var img image.Image
	switch k {
	case kindImage:
		img, err = decodeFile(src)
	case kindVideo:
		img, err = g.videoFrame(ctx, src)
	}
	if err != nil {
		g.log.Warn("thumbnail failed", "path", src, "error", err)
		return "", err
	}

	if err := fileutil.EnsureDir(g.opts.CacheDir); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}
	thumb := Scale(img, g.opts.Size)
	err = fileutil.WriteAtomic(dest, func(w io.Writer) error {
		return jpeg.Encode(w, thumb, &jpeg.Options{Quality: 85})
	})
	if err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}
	return dest, nil
}

// IsVideo reports whether path names a video by its extension.
func IsVideo(path string) bool {
	return extKinds[strings.ToLower(filepath.Ext(path))] == kindVideo
}

// detectKind uses the extension, falling back to content sniffing for
// extensionless files.
func detectKind(path string) (kind, error) {
	if k, ok := extKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return k, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return kindUnknown, err
	}
	defer f.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	ct := http.DetectContentType(head[:n])
	switch {
	case strings.HasPrefix(ct, "image/"):
		return kindImage, nil
	case strings.HasPrefix(ct, "video/"):
		return kindVideo, nil
	}
	return kindUnknown, fmt.Errorf("%w: %s", ErrUnsupported, ct)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return img, nil
}

// videoFrame grabs the first frame as PNG through ffmpeg's stdout.
func (g *Generator) videoFrame(ctx context.Context, src string) (image.Image, error) {
	bin := g.opts.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not available: %v", ErrUnsupported, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.VideoTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error",
		"-i", src,
		"-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "png", "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, g.opts.VideoTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode video frame: %w", err)
	}
	return img, nil
}

// Scale fits img inside a size x size box, keeping its aspect ratio. Images
// already small enough are returned unchanged.
func Scale(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= size && h <= size {
		return img
	}
	if w >= h {
		h = max(1, h*size/w)
		w = size
	} else {
		w = max(1, w*size/h)
		h = size
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
