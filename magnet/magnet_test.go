package magnet_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mybittorrent/digest"
	"mybittorrent/magnet"
)

func TestParseExtractsAllThreeParams(t *testing.T) {
	hashHex := "d69f91e6b2ae4c542468d1073a71d4ea13879a7f"
	uri := "magnet:?xt=urn:btih:" + hashHex + "&dn=some-file.iso&tr=http%3A%2F%2Ftracker.example.com%2Fannounce"

	link, err := magnet.Parse(uri)
	require.NoError(t, err)
	require.Equal(t, "some-file.iso", link.Name)
	require.Equal(t, "http://tracker.example.com/announce", link.Tracker)
	require.Equal(t, hashHex, digest.Hex(link.InfoHash))
}

func TestParseIgnoresExtraParams(t *testing.T) {
	hashHex := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	uri := "magnet:?xt=urn:btih:" + hashHex + "&dn=x&tr=http%3A%2F%2Ft&x.pe=1.2.3.4%3A6881"

	link, err := magnet.Parse(uri)
	require.NoError(t, err)
	require.Equal(t, hashHex, digest.Hex(link.InfoHash))
}

func TestParseRejectsNonMagnetScheme(t *testing.T) {
	_, err := magnet.Parse("http://example.com")
	require.ErrorIs(t, err, magnet.ErrMalformedMagnetURI)
}

func TestParseRejectsMissingXt(t *testing.T) {
	_, err := magnet.Parse("magnet:?dn=x")
	require.ErrorIs(t, err, magnet.ErrMalformedMagnetURI)
}

func TestParseRejectsShortInfoHash(t *testing.T) {
	_, err := magnet.Parse("magnet:?xt=urn:btih:deadbeef")
	require.ErrorIs(t, err, magnet.ErrMalformedMagnetURI)
}
