package browser

import (
	"fmt"
	"net/url"
	"strings"
)

// URLLocation is a Location backed by a fixed address.
type URLLocation struct {
	href   string
	origin string
	hash   string
}

// ensure that URLLocation implements the Location interface
var _ Location = (*URLLocation)(nil)

// NewLocation parses rawURL into a Location.  The fragment is kept verbatim
// (no unescaping) since provider responses are decoded later.
func NewLocation(rawURL string) (*URLLocation, error) {
	const op = "browser.NewLocation"
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse %q: %w", op, rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: %q is not an absolute address: %w", op, rawURL, ErrInvalidParameter)
	}
	var hash string
	if i := strings.Index(rawURL, "#"); i >= 0 {
		hash = rawURL[i:]
	}
	return &URLLocation{
		href:   rawURL,
		origin: u.Scheme + "://" + u.Host,
		hash:   hash,
	}, nil
}

func (l *URLLocation) Href() string   { return l.href }   // Href implements Location.Href
func (l *URLLocation) Origin() string { return l.origin } // Origin implements Location.Origin
func (l *URLLocation) Hash() string   { return l.hash }   // Hash implements Location.Hash

// Route returns the in-app route encoded in a hash-bang fragment, e.g.
// "/callback" for "#!/callback#access_token=...".  Anything after a nested
// "#" is dropped.  An address without a route yields "/".
func Route(l Location) string {
	h := strings.TrimPrefix(l.Hash(), "#")
	h = strings.TrimPrefix(h, "!")
	if i := strings.Index(h, "#"); i >= 0 {
		h = h[:i]
	}
	if i := strings.IndexAny(h, "?"); i >= 0 {
		h = h[:i]
	}
	if !strings.HasPrefix(h, "/") {
		return "/"
	}
	return h
}
