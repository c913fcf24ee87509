package extractor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/guiyumin/clipget/internal/core/i18n"
	"github.com/guiyumin/clipget/internal/core/platform"
)

var (
	// ErrNotApplicable is returned by a strategy that has nothing to try for
	// a link. The resolver skips it without counting a failure.
	ErrNotApplicable = errors.New("strategy not applicable")

	// ErrUnsupportedURL matches every *UnsupportedURLError.
	ErrUnsupportedURL = errors.New("unsupported url")
)

// UnsupportedURLError is returned when the classifier rejects the input.
type UnsupportedURLError struct {
	URL string
}

func (e *UnsupportedURLError) Error() string {
	return fmt.Sprintf("unsupported url: %q", e.URL)
}

func (e *UnsupportedURLError) Is(target error) bool {
	return target == ErrUnsupportedURL
}

// Describe turns a resolver error, or a descriptor without qualities when err
// is nil, into a message for the user.
func Describe(err error, t *i18n.Translations) string {
	if err == nil {
		return t.Errors.NoMedia
	}
	if errors.Is(err, ErrUnsupportedURL) {
		return fmt.Sprintf(t.Errors.UnsupportedURL, strings.Join(platform.DisplayNames(), ", "))
	}

	var twErr *TwitterError
	if errors.As(err, &twErr) {
		switch twErr.Code {
		case TwitterErrorNSFW:
			return t.Errors.TweetNSFW
		case TwitterErrorProtected:
			return t.Errors.TweetProtected
		default:
			return t.Errors.TweetUnavailable
		}
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind() {
		case FetchConnectivity:
			return t.Errors.Connectivity
		case FetchTimeout:
			return t.Errors.Timeout
		}
	}
	return t.Errors.Network
}
