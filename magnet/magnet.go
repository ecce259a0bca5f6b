// Package magnet parses the minimal magnet URI form spec §6 defines:
// `magnet:?xt=urn:btih:<40 hex>&dn=<name>&tr=<url-encoded tracker>`.
package magnet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"mybittorrent/digest"
)

// ErrMalformedMagnetURI is returned when the URI is not a magnet URI, or
// its xt parameter is not a 40-hex-char BitTorrent info hash.
var ErrMalformedMagnetURI = errors.New("magnet: malformed magnet uri")

const btihPrefix = "urn:btih:"

// Link holds the three parameters this spec's magnet parser extracts.
// Any other query parameter present in the URI is ignored.
type Link struct {
	InfoHash [digest.Size]byte
	Name     string
	Tracker  string
}

// Parse extracts InfoHash, Name, and Tracker from a magnet URI.
func Parse(raw string) (*Link, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMagnetURI, err)
	}
	if u.Scheme != "magnet" {
		return nil, fmt.Errorf("%w: scheme %q is not magnet", ErrMalformedMagnetURI, u.Scheme)
	}

	q := u.Query()

	xt := q.Get("xt")
	if !strings.HasPrefix(xt, btihPrefix) {
		return nil, fmt.Errorf("%w: xt parameter missing urn:btih: prefix", ErrMalformedMagnetURI)
	}
	hashHex := strings.TrimPrefix(xt, btihPrefix)

	hashBytes, err := hex.DecodeString(hashHex)
	if err != nil || len(hashBytes) != digest.Size {
		return nil, fmt.Errorf("%w: xt info hash must be %d hex bytes", ErrMalformedMagnetURI, digest.Size)
	}

	var infoHash [digest.Size]byte
	copy(infoHash[:], hashBytes)

	return &Link{
		InfoHash: infoHash,
		Name:     q.Get("dn"),
		Tracker:  q.Get("tr"),
	}, nil
}
