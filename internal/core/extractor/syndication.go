package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"

	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/platform"
)

const twitterSyndicationURL = "https://cdn.syndication.twimg.com/tweet-result"

// TwitterError carries a reason code so callers can localize the message.
type TwitterError struct {
	Code    string // "nsfw", "protected", "unavailable"
	Message string
}

func (e *TwitterError) Error() string {
	return e.Message
}

const (
	TwitterErrorNSFW        = "nsfw"
	TwitterErrorProtected   = "protected"
	TwitterErrorUnavailable = "unavailable"
)

// SyndicationStrategy reads a tweet from the public syndication endpoint
// used by embedded tweets. It yields one option per quality tier.
type SyndicationStrategy struct {
	Fetcher Fetcher
	// Endpoint overrides twitterSyndicationURL in tests.
	Endpoint string
}

var _ Strategy = (*SyndicationStrategy)(nil)

func (s *SyndicationStrategy) Name() string { return "syndication" }

func (s *SyndicationStrategy) Resolve(ctx context.Context, res link.Result) (*VideoInfo, error) {
	if res.Platform != platform.Twitter || !numericIDRegex.MatchString(res.VideoID) {
		return nil, ErrNotApplicable
	}

	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = twitterSyndicationURL
	}
	params := url.Values{}
	params.Set("id", res.VideoID)
	params.Set("token", "x") // required, value is not checked

	resp, err := s.Fetcher.Fetch(ctx, endpoint+"?"+params.Encode(), map[string]string{
		"User-Agent": userAgentDesktop,
		"Accept":     "application/json",
	})
	if err != nil {
		return nil, err
	}

	var data syndicationResponse
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse syndication response: %w", err)
	}
	return parseSyndicationResponse(&data)
}

func parseSyndicationResponse(data *syndicationResponse) (*VideoInfo, error) {
	switch data.TypeName {
	case "TweetTombstone":
		msg := "tweet is unavailable"
		if data.Tombstone.Text.Text != "" {
			msg = data.Tombstone.Text.Text
		}
		return nil, &TwitterError{Code: TwitterErrorUnavailable, Message: msg}
	case "TweetUnavailable":
		switch data.Reason {
		case "NsfwLoggedOut":
			return nil, &TwitterError{Code: TwitterErrorNSFW, Message: "age-restricted content requires login"}
		case "Protected":
			return nil, &TwitterError{Code: TwitterErrorProtected, Message: "protected tweet requires authorization"}
		}
		return nil, &TwitterError{Code: TwitterErrorUnavailable, Message: "tweet is unavailable"}
	}

	info := &VideoInfo{
		Title:           data.Text,
		Description:     data.Text,
		Author:          data.User.ScreenName,
		AuthorAvatarURL: data.User.ProfileImageURLHTTPS,
	}

	for _, media := range data.MediaDetails {
		if info.ThumbnailURL == "" {
			info.ThumbnailURL = media.MediaURLHTTPS
		}
		if media.Type != "video" && media.Type != "animated_gif" {
			continue
		}
		info.Duration = media.VideoInfo.DurationMillis / 1000
		var variants []mp4Variant
		for _, v := range media.VideoInfo.Variants {
			if v.ContentType != "video/mp4" {
				continue
			}
			variants = append(variants, mp4Variant{bitrate: v.Bitrate, opt: QualityOption{
				Tier:          variantTier(v.URL, v.Bitrate),
				EstimatedSize: int64(v.Bitrate) / 8 * int64(info.Duration),
				URL:           v.URL,
			}})
		}
		// Highest bitrate first so it wins its tier.
		sort.SliceStable(variants, func(i, j int) bool {
			return variants[i].bitrate > variants[j].bitrate
		})
		for _, v := range variants {
			info.Qualities = append(info.Qualities, v.opt)
		}
		// Only the first video of a multi-video tweet is offered.
		if len(info.Qualities) > 0 {
			break
		}
	}

	// Single-video tweets sometimes only carry the top-level video field.
	if len(info.Qualities) == 0 {
		for _, v := range data.Video.Variants {
			if v.Type != "video/mp4" {
				continue
			}
			info.Qualities = append(info.Qualities, QualityOption{
				Tier: variantTier(v.Src, 0),
				URL:  v.Src,
			})
		}
	}

	return info, nil
}

type mp4Variant struct {
	bitrate int
	opt     QualityOption
}

// variantTier derives a tier from the WxH segment of a variant URL, falling
// back to the bitrate.
func variantTier(u string, bitrate int) platform.QualityTier {
	if w, h := extractResolutionFromURL(u); w > 0 && h > 0 {
		// Portrait videos are described by their short side.
		if w < h {
			h = w
		}
		return platform.TierForHeight(h)
	}
	if bitrate > 0 {
		return platform.TierForBitrate(bitrate)
	}
	return platform.DefaultQuality
}

var resolutionRegex = regexp.MustCompile(`/(\d+)x(\d+)/`)

func extractResolutionFromURL(u string) (width, height int) {
	matches := resolutionRegex.FindStringSubmatch(u)
	if len(matches) >= 3 {
		w, _ := strconv.Atoi(matches[1])
		h, _ := strconv.Atoi(matches[2])
		return w, h
	}
	return 0, 0
}

type syndicationResponse struct {
	TypeName  string `json:"__typename"`
	Reason    string `json:"reason"`
	Tombstone struct {
		Text struct {
			Text string `json:"text"`
		} `json:"text"`
	} `json:"tombstone"`
	Text string `json:"text"`
	User struct {
		ScreenName           string `json:"screen_name"`
		Name                 string `json:"name"`
		ProfileImageURLHTTPS string `json:"profile_image_url_https"`
	} `json:"user"`
	MediaDetails []struct {
		Type          string `json:"type"`
		MediaURLHTTPS string `json:"media_url_https"`
		VideoInfo     struct {
			DurationMillis int `json:"duration_millis"`
			Variants       []struct {
				Bitrate     int    `json:"bitrate"`
				ContentType string `json:"content_type"`
				URL         string `json:"url"`
			} `json:"variants"`
		} `json:"video_info"`
	} `json:"mediaDetails"`
	Video struct {
		Variants []struct {
			Type string `json:"type"`
			Src  string `json:"src"`
		} `json:"variants"`
	} `json:"video"`
}
