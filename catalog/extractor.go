package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // embedded covers are usually JPEG
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/faiface/beep/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/nfnt/resize"
)

// ErrUnreadable is returned when neither tags nor audio could be read.
var ErrUnreadable = errors.New("catalog: unreadable audio file")

var errNoDuration = errors.New("duration not available for format")

// Metadata is what an Extractor reads from one file. Empty strings are
// replaced with defaults when the track is indexed.
type Metadata struct {
	Title    string
	Album    string
	Artist   string
	Duration time.Duration
	Artwork  image.Image
}

// Extractor reads per-file metadata during a scan. Implementations are
// called from several goroutines at once.
type Extractor interface {
	Extract(path string) (Metadata, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(path string) (Metadata, error)

func (f ExtractorFunc) Extract(path string) (Metadata, error) { return f(path) }

// ArtworkResizer shrinks embedded covers before they are cached on a track.
type ArtworkResizer interface {
	Resize(img image.Image) image.Image
}

// ThumbnailResizer fits artwork into a Size x Size box keeping its aspect ratio.
type ThumbnailResizer struct {
	Size uint
}

func (r ThumbnailResizer) Resize(img image.Image) image.Image {
	if r.Size == 0 {
		return img
	}
	return resize.Thumbnail(r.Size, r.Size, img, resize.Lanczos3)
}

// TagExtractor reads ID3/MP4/FLAC/Ogg tags and embedded artwork, and decodes
// MP3 and WAV headers for the duration.
type TagExtractor struct {
	resizer ArtworkResizer
	logger  *slog.Logger
}

// NewTagExtractor returns an extractor that caches artwork through resizer.
// A nil resizer drops artwork.
func NewTagExtractor(resizer ArtworkResizer, logger *slog.Logger) *TagExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TagExtractor{resizer: resizer, logger: logger}
}

// Extract fails only when the file cannot be opened or when both the tag
// reader and the audio decoder reject it.
func (e *TagExtractor) Extract(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var md Metadata
	m, tagErr := tag.ReadFrom(f)
	if tagErr == nil {
		md.Title = m.Title()
		md.Album = m.Album()
		md.Artist = m.Artist()
		if pic := m.Picture(); pic != nil {
			md.Artwork = e.artwork(path, pic.Data)
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Metadata{}, fmt.Errorf("rewind %s: %w", path, err)
	}
	duration, durErr := readDuration(f, strings.ToLower(filepath.Ext(path)))
	if tagErr != nil && durErr != nil {
		return Metadata{}, fmt.Errorf("%w: %s: tags: %v, audio: %v", ErrUnreadable, path, tagErr, durErr)
	}
	if durErr != nil && !errors.Is(durErr, errNoDuration) {
		e.logger.Debug("Could not decode duration", slog.String("path", path), slog.String("error", durErr.Error()))
	}
	md.Duration = duration

	return md, nil
}

func (e *TagExtractor) artwork(path string, data []byte) image.Image {
	if e.resizer == nil || len(data) == 0 {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		e.logger.Debug("Skipping undecodable artwork", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	return e.resizer.Resize(img)
}

func readDuration(r io.ReadSeeker, ext string) (time.Duration, error) {
	switch ext {
	case ".mp3":
		d, err := gomp3.NewDecoder(r)
		if err != nil {
			return 0, err
		}
		// Decoded output is 16-bit stereo: four bytes per sample frame.
		frames := d.Length() / 4
		if frames <= 0 || d.SampleRate() <= 0 {
			return 0, errNoDuration
		}
		return time.Duration(frames) * time.Second / time.Duration(d.SampleRate()), nil
	case ".wav":
		s, format, err := wav.Decode(r)
		if err != nil {
			return 0, err
		}
		return format.SampleRate.D(s.Len()), nil
	default:
		return 0, errNoDuration
	}
}
