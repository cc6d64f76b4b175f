package thumbnail

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/wesm/snapvault/internal/testutil"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	f, err := os.Create(path)
	testutil.MustNoErr(t, err, "create png")
	defer f.Close()
	testutil.MustNoErr(t, png.Encode(f, img), "encode png")
}

func decodeSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	testutil.MustNoErr(t, err, "open thumbnail")
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	testutil.MustNoErr(t, err, "decode thumbnail")
	return cfg.Width, cfg.Height
}

func TestThumbnail_ImageIsScaledAndCached(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "2024-01-01_b~EiASFzRraXd1bWVzc2FnZXM.png")
	writePNG(t, src, 400, 200)

	g := New(Options{CacheDir: filepath.Join(dir, "thumbs"), Size: 100}, nil)
	path, err := g.Thumbnail(context.Background(), src)
	testutil.MustNoErr(t, err, "Thumbnail")

	if w, h := decodeSize(t, path); w != 100 || h != 50 {
		t.Errorf("thumbnail is %dx%d, want 100x50", w, h)
	}

	st1, err := os.Stat(path)
	testutil.MustNoErr(t, err, "stat")
	again, err := g.Thumbnail(context.Background(), src)
	testutil.MustNoErr(t, err, "Thumbnail again")
	st2, err := os.Stat(again)
	testutil.MustNoErr(t, err, "stat again")
	if again != path || !st1.ModTime().Equal(st2.ModTime()) {
		t.Error("second call regenerated the thumbnail")
	}
}

func TestThumbnail_SniffsExtensionlessFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "media_blob")
	writePNG(t, src, 20, 40)

	g := New(Options{CacheDir: dir}, nil)
	path, err := g.Thumbnail(context.Background(), src)
	testutil.MustNoErr(t, err, "Thumbnail")
	if w, h := decodeSize(t, path); w != 20 || h != 40 {
		t.Errorf("small image resized to %dx%d", w, h)
	}
}

func TestThumbnail_Unsupported(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	testutil.MustNoErr(t, os.WriteFile(src, []byte("plain text"), 0600), "write")

	_, err := New(Options{CacheDir: dir}, nil).Thumbnail(context.Background(), src)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}

	broken := filepath.Join(dir, "broken.jpg")
	testutil.MustNoErr(t, os.WriteFile(broken, []byte("not a jpeg"), 0600), "write")
	_, err = New(Options{CacheDir: dir}, nil).Thumbnail(context.Background(), broken)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("broken image: err = %v, want ErrUnsupported", err)
	}
}

func TestThumbnail_MissingFFmpeg(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	testutil.MustNoErr(t, os.WriteFile(src, []byte("video"), 0600), "write")

	g := New(Options{CacheDir: dir, FFmpegPath: filepath.Join(dir, "no-such-ffmpeg")}, nil)
	if _, err := g.Thumbnail(context.Background(), src); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestThumbnail_VideoTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script in place of ffmpeg")
	}
	dir := t.TempDir()
	fake := filepath.Join(dir, "ffmpeg")
	testutil.MustNoErr(t, os.WriteFile(fake, []byte("#!/bin/sh\nsleep 10\n"), 0700), "write fake ffmpeg")
	src := filepath.Join(dir, "clip.mp4")
	testutil.MustNoErr(t, os.WriteFile(src, []byte("video"), 0600), "write")

	g := New(Options{CacheDir: dir, FFmpegPath: fake, VideoTimeout: 100 * time.Millisecond}, nil)
	start := time.Now()
	_, err := g.Thumbnail(context.Background(), src)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		w, h, size   int
		wantW, wantH int
	}{
		{400, 200, 100, 100, 50},
		{200, 400, 100, 50, 100},
		{50, 50, 100, 50, 50},
		{1000, 1, 100, 100, 1},
	}
	for _, tt := range tests {
		got := Scale(image.NewRGBA(image.Rect(0, 0, tt.w, tt.h)), tt.size).Bounds()
		if got.Dx() != tt.wantW || got.Dy() != tt.wantH {
			t.Errorf("Scale(%dx%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.size, got.Dx(), got.Dy(), tt.wantW, tt.wantH)
		}
	}
}

func TestIsVideo(t *testing.T) {
	if !IsVideo("a/b/clip.MP4") || IsVideo("photo.jpg") {
		t.Error("IsVideo misclassified")
	}
}
