package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/metrics"
	"github.com/hormur/event-syndicator/internal/models"
)

// maxSourceBytes bounds how much of a source image is read.
const maxSourceBytes = 20 << 20

// Spec is the pixel contract a platform upload control expects.
type Spec struct {
	Width   int
	Height  int
	Quality int
}

// Square800 is an 800x800 cover crop encoded as JPEG quality 90.
var Square800 = Spec{Width: 800, Height: 800, Quality: 90}

// Asset is a transcoded image ready for upload.
type Asset struct {
	Data        []byte
	ContentType string
}

// WriteTemp writes the asset to a temporary file. The returned cleanup removes it.
func (a *Asset) WriteTemp(pattern string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", f.Name()).Msg("Failed to remove temp image")
		}
	}
	if _, err := f.Write(a.Data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// ObjectFetcher reads objects from object storage (s3://bucket/key sources).
type ObjectFetcher interface {
	FetchObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Pipeline fetches source images and transcodes them.
type Pipeline struct {
	client  *http.Client
	objects ObjectFetcher
}

// NewPipeline creates a Pipeline. objects may be nil when no object storage is configured.
func NewPipeline(client *http.Client, objects ObjectFetcher) *Pipeline {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Pipeline{client: client, objects: objects}
}

// Transcode fetches sourceURL and renders it to spec. Any failure is logged and
// reported as nil: a missing image never fails a publish.
func (p *Pipeline) Transcode(ctx context.Context, sourceURL string, spec Spec) *Asset {
	start := time.Now()
	asset, err := p.transcode(ctx, sourceURL, spec)
	if err != nil {
		metrics.ObserveTranscode(false)
		log.Warn().
			Err(err).
			Str("source", sourceURL).
			Msg("Image unavailable, continuing without attachment")
		return nil
	}

	metrics.ObserveTranscode(true)
	log.Info().
		Str("source", sourceURL).
		Int("bytes", len(asset.Data)).
		Dur("duration_ms", time.Since(start)).
		Msg("Image transcoded")
	return asset
}

func (p *Pipeline) transcode(ctx context.Context, sourceURL string, spec Spec) (*Asset, error) {
	body, err := p.fetch(ctx, sourceURL)
	if err != nil {
		return nil, models.E(models.KindAsset, "fetch image", err)
	}
	defer body.Close()

	src, err := imaging.Decode(io.LimitReader(body, maxSourceBytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, models.E(models.KindAsset, "decode image", err)
	}

	dst := imaging.Fill(src, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(spec.Quality)); err != nil {
		return nil, models.E(models.KindAsset, "encode image", err)
	}

	return &Asset{Data: buf.Bytes(), ContentType: "image/jpeg"}, nil
}

func (p *Pipeline) fetch(ctx context.Context, sourceURL string) (io.ReadCloser, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return p.fetchHTTP(ctx, sourceURL)
	case "s3":
		if p.objects == nil {
			return nil, fmt.Errorf("object storage not configured for %s", sourceURL)
		}
		return p.objects.FetchObject(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, fmt.Errorf("unsupported image url scheme %q", u.Scheme)
	}
}

func (p *Pipeline) fetchHTTP(ctx context.Context, sourceURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
