// Package station provides the stream target domain entity.
package station

import (
	"net/url"

	"github.com/cockroachdb/errors"
)

// Station identifies a single streaming radio source. A Station is
// immutable once a play command binds it; the next accepted play
// command replaces it wholesale.
type Station struct {
	URI   string // stream URL
	Title string // human-readable name for presentation
}

// New validates the stream URI and returns a Station. An empty title
// falls back to the URI host.
func New(uri, title string) (Station, error) {
	if uri == "" {
		return Station{}, errors.New("station: empty stream URI")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Station{}, errors.Wrap(err, "station: invalid stream URI")
	}
	if u.Scheme == "" || u.Host == "" {
		return Station{}, errors.Newf("station: stream URI must be absolute: %s", uri)
	}
	if title == "" {
		title = u.Host
	}
	return Station{URI: uri, Title: title}, nil
}

// IsZero reports whether no station has been bound.
func (s Station) IsZero() bool {
	return s.URI == ""
}

func (s Station) String() string {
	return s.Title + " (" + s.URI + ")"
}
