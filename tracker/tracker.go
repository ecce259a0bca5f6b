// Package tracker issues BEP-3 HTTP announce requests and parses the
// compact peer list a tracker returns.
package tracker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"mybittorrent/bencode"
	"mybittorrent/digest"
	"mybittorrent/internal/session"
	"mybittorrent/metainfo"
)

// maxTrackerResponse bounds how much of a tracker's response body we will
// read, guarding against a misbehaving or malicious tracker.
const maxTrackerResponse = 1 << 20 // 1 MiB

// Errors returned by Announce.
var (
	ErrTrackerUnreachable  = errors.New("tracker: unreachable")
	ErrTrackerProtocol     = errors.New("tracker: protocol error")
	ErrNoPeers             = errors.New("tracker: no peers returned")
	ErrInvalidPeerListSize = errors.New("tracker: compact peer list length is not a multiple of 6")
)

// Peer is one (IPv4, port) endpoint parsed from a tracker's compact peer
// list (spec §3).
type Peer struct {
	IP   net.IP
	Port uint16
}

// String renders a Peer as "ip:port".
func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Response is the parsed tracker announce reply.
type Response struct {
	Interval int
	Peers    []Peer
}

// Client issues announce requests over HTTP.
type Client struct {
	HTTPClient *http.Client
}

// NewClient returns a Client whose HTTP timeout is derived from sess.
func NewClient(sess *session.Session) *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout: sess.ConnectTimeout + sess.ReadTimeout,
		},
	}
}

// Announce contacts m.Announce with a BEP-3 announce request and returns
// the parsed peer list.
//
// The info_hash parameter is percent-encoded from the raw 20-byte digest
// (standard BEP-3 behavior) — not from a lowercase-hex rendering, which
// spec's Open Questions flag as a non-standard mistake some reference
// clients make.
func (c *Client) Announce(ctx context.Context, m *metainfo.Metainfo, sess *session.Session) (*Response, error) {
	u, err := url.Parse(m.Announce)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing announce URL: %v", ErrTrackerProtocol, err)
	}

	q := u.Query()
	q.Set("peer_id", sess.PeerID)
	q.Set("port", strconv.Itoa(int(sess.Port)))
	q.Set("uploaded", "0")
	q.Set("downloaded", "0")
	q.Set("left", strconv.FormatInt(m.Info.Length, 10))
	q.Set("compact", "1")
	u.RawQuery = q.Encode() + "&info_hash=" + digest.PercentEncode(m.InfoHash)

	log.Info().Str("url", u.String()).Msg("tracker: sending announce")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrTrackerUnreachable, err)
	}
	req.Header.Set("User-Agent", "mybittorrent/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrackerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tracker responded %d", ErrTrackerProtocol, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTrackerResponse+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTrackerProtocol, err)
	}
	if len(body) > maxTrackerResponse {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrTrackerProtocol, maxTrackerResponse)
	}

	v, _, err := bencode.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding bencode: %v", ErrTrackerProtocol, err)
	}

	if failure, ok := v.Lookup("failure reason"); ok {
		reason, _ := failure.Str()
		return nil, fmt.Errorf("%w: %s", ErrTrackerProtocol, reason)
	}

	intervalVal, ok := v.Lookup("interval")
	if !ok {
		return nil, fmt.Errorf("%w: missing interval", ErrTrackerProtocol)
	}
	interval, ok := intervalVal.Int()
	if !ok {
		return nil, fmt.Errorf("%w: interval is not an integer", ErrTrackerProtocol)
	}

	peersVal, ok := v.Lookup("peers")
	if !ok {
		return nil, fmt.Errorf("%w: missing peers", ErrTrackerProtocol)
	}
	peerBytes, ok := peersVal.Bytes()
	if !ok {
		return nil, fmt.Errorf("%w: peers is not a byte string", ErrTrackerProtocol)
	}

	peers, err := ParseCompactPeers(peerBytes)
	if err != nil {
		return nil, err
	}
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}

	log.Info().Int("peer_count", len(peers)).Int("interval", int(interval)).Msg("tracker: announce complete")

	return &Response{Interval: int(interval), Peers: peers}, nil
}

// ParseCompactPeers parses the compact 6-byte-per-peer encoding (4
// big-endian IPv4 octets, 2 big-endian port bytes) into a Peer slice.
func ParseCompactPeers(b []byte) ([]Peer, error) {
	if len(b)%6 != 0 {
		return nil, ErrInvalidPeerListSize
	}

	peers := make([]Peer, 0, len(b)/6)
	for i := 0; i < len(b); i += 6 {
		ip := net.IPv4(b[i], b[i+1], b[i+2], b[i+3])
		port := binary.BigEndian.Uint16(b[i+4 : i+6])
		peers = append(peers, Peer{IP: ip, Port: port})
	}
	return peers, nil
}
