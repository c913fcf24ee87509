package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/platform"
)

// DefaultRenderTimeout bounds a whole render, settle delay included.
const DefaultRenderTimeout = 15 * time.Second

// RenderStrategy runs the page search on the rendered DOM and falls back to
// the media requests the page made while rendering.
type RenderStrategy struct {
	Renderer Renderer
	Timeout  time.Duration
}

var _ Strategy = (*RenderStrategy)(nil)

func (s *RenderStrategy) Name() string { return "render" }

// Resolve returns (nil, nil) when the render times out or the page shows
// nothing at all.
func (s *RenderStrategy) Resolve(ctx context.Context, res link.Result) (*VideoInfo, error) {
	if s.Renderer == nil || res.CanonicalURL == "" {
		return nil, ErrNotApplicable
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	renderCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rendered, err := s.Renderer.Render(renderCtx, res.CanonicalURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || renderCtx.Err() != nil {
			return nil, nil
		}
		return nil, err
	}
	if rendered == nil {
		return nil, nil
	}

	info := &VideoInfo{}
	if rendered.HTML != "" {
		doc, err := parseHTML([]byte(rendered.HTML))
		if err != nil {
			return nil, fmt.Errorf("parsing rendered page: %w", err)
		}
		info = scrapeDocument(res.Platform, doc, rendered.HTML, firstNonEmpty(rendered.URL, res.CanonicalURL))
	}
	info.Title = firstNonEmpty(info.Title, rendered.Title)
	info.ThumbnailURL = firstNonEmpty(info.ThumbnailURL, rendered.Thumbnail)
	info.Author = firstNonEmpty(info.Author, rendered.Author)

	if len(info.Qualities) == 0 {
		media := rendered.MediaURL
		if !isHTTPURL(media) && len(rendered.Captured) > 0 {
			media = rendered.Captured[0]
		}
		if isHTTPURL(media) {
			info.Qualities = []QualityOption{{Tier: platform.DefaultQuality, URL: media}}
		}
	}
	for i := range info.Qualities {
		info.Qualities[i].Headers = map[string]string{"Referer": res.CanonicalURL}
	}

	if len(info.Qualities) == 0 && info.Title == "" && info.ThumbnailURL == "" {
		return nil, nil
	}
	return info, nil
}
