package extractor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/platform"
)

// DefaultPlans lists, per platform, the strategies tried in order.
func DefaultPlans() map[platform.Platform][]string {
	return map[platform.Platform][]string{
		platform.Instagram: {"embed", "page", "render"},
		platform.TikTok:    {"embed", "page", "render"},
		platform.Twitter:   {"syndication", "proxy", "page", "render"},
		platform.YouTube:   {"page", "render"},
		platform.Facebook:  {"embed", "page", "render"},
		platform.Pinterest: {"embed", "page", "render"},
	}
}

// Resolver turns a post URL into a VideoInfo by trying strategies until one
// finds playable media.
type Resolver struct {
	strategies    map[string]Strategy
	plans         map[platform.Platform][]string
	renderTimeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPlan replaces the strategy order for p.
func WithPlan(p platform.Platform, names ...string) Option {
	return func(r *Resolver) {
		r.plans[p] = append([]string(nil), names...)
	}
}

// WithStrategy adds s, replacing any strategy with the same name.
func WithStrategy(s Strategy) Option {
	return func(r *Resolver) {
		r.strategies[s.Name()] = s
	}
}

// WithRenderTimeout sets the hard timeout of the render strategy.
func WithRenderTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.renderTimeout = d
	}
}

// New builds a resolver with the built-in strategies. A nil renderer drops
// "render" from every plan.
func New(fetcher Fetcher, renderer Renderer, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		strategies: map[string]Strategy{
			"embed":       &EmbedStrategy{Fetcher: fetcher},
			"syndication": &SyndicationStrategy{Fetcher: fetcher},
			"proxy":       &ProxyStrategy{Fetcher: fetcher},
			"page":        &PageStrategy{Fetcher: fetcher},
		},
		plans:         DefaultPlans(),
		renderTimeout: DefaultRenderTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if _, ok := r.strategies["render"]; !ok && renderer != nil {
		r.strategies["render"] = &RenderStrategy{Renderer: renderer, Timeout: r.renderTimeout}
	}

	for p, names := range r.plans {
		kept := names[:0:0]
		for _, name := range names {
			if _, ok := r.strategies[name]; ok {
				kept = append(kept, name)
				continue
			}
			if name == "render" && renderer == nil {
				continue
			}
			return nil, fmt.Errorf("unknown strategy %q in plan for %s", name, p)
		}
		r.plans[p] = kept
	}
	return r, nil
}

// Plan returns the strategy names tried for p.
func (r *Resolver) Plan(p platform.Platform) []string {
	return append([]string(nil), r.plans[p]...)
}

// Resolve classifies rawURL and runs its platform's plan. A descriptor with
// no qualities means the post was found but holds no playable media.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*VideoInfo, error) {
	res := link.Classify(rawURL)
	if !res.Valid {
		return nil, &UnsupportedURLError{URL: rawURL}
	}

	merged := &VideoInfo{}
	reached := false
	var lastErr error

	for _, name := range r.plans[res.Platform] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := r.strategies[name].Resolve(ctx, res)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Printf("resolver: %s strategy failed for %s: %v", name, res.CanonicalURL, err)
			// a tweet's own unavailability outranks later generic failures
			var twErr *TwitterError
			if !errors.As(lastErr, &twErr) {
				lastErr = err
			}
			continue
		}
		if info == nil {
			continue
		}
		reached = true

		mergeMetadata(merged, info)
		if info.Playable() {
			merged.Qualities = info.Qualities
			return r.finish(res, merged), nil
		}
	}

	if !reached && lastErr != nil {
		var fetchErr *FetchError
		if errors.As(lastErr, &fetchErr) {
			return nil, fetchErr
		}
		return nil, &FetchError{URL: res.CanonicalURL, Err: lastErr}
	}
	merged.Qualities = nil
	return r.finish(res, merged), nil
}

// mergeMetadata fills the empty text fields of dst from src.
func mergeMetadata(dst, src *VideoInfo) {
	dst.Title = firstNonEmpty(dst.Title, src.Title)
	dst.Description = firstNonEmpty(dst.Description, src.Description)
	dst.ThumbnailURL = firstNonEmpty(dst.ThumbnailURL, src.ThumbnailURL)
	dst.Author = firstNonEmpty(dst.Author, src.Author)
	dst.AuthorAvatarURL = firstNonEmpty(dst.AuthorAvatarURL, src.AuthorAvatarURL)
	if dst.Duration == 0 {
		dst.Duration = src.Duration
	}
}

func (r *Resolver) finish(res link.Result, info *VideoInfo) *VideoInfo {
	info.ID = DescriptorID(res)
	info.SourceURL = res.CanonicalURL
	info.Platform = res.Platform

	info.Title = capText(info.Title, MaxTitleRunes)
	if info.Title == "" {
		info.Title = res.Platform.DisplayName() + " Video"
	}
	info.Description = capText(info.Description, MaxDescriptionRunes)
	info.Author = capText(info.Author, MaxAuthorRunes)
	info.Qualities = normalizeQualities(info.Qualities)
	return info
}
