package tracker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"mybittorrent/bencode"
	"mybittorrent/internal/session"
	"mybittorrent/metainfo"
	"mybittorrent/tracker"
)

func compactPeers(t *testing.T, addrs ...[6]byte) []byte {
	t.Helper()
	var out []byte
	for _, a := range addrs {
		out = append(out, a[:]...)
	}
	return out
}

func TestAnnounceParsesPeers(t *testing.T) {
	peers := compactPeers(t, [6]byte{127, 0, 0, 1, 0x1a, 0xe1})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("compact"))
		require.NotEmpty(t, r.URL.Query().Get("peer_id"))

		resp := bencode.Dict([]bencode.DictEntry{
			{Key: []byte("interval"), Value: bencode.Int(1800)},
			{Key: []byte("peers"), Value: bencode.Bytes(peers)},
		})
		w.Write(bencode.Marshal(resp))
	}))
	defer srv.Close()

	m := &metainfo.Metainfo{Announce: srv.URL, Info: metainfo.Info{Length: 100}}
	sess, err := session.New()
	require.NoError(t, err)

	client := tracker.NewClient(sess)
	got, err := client.Announce(context.Background(), m, sess)
	require.NoError(t, err)

	require.Equal(t, 1800, got.Interval)
	require.Len(t, got.Peers, 1)
	require.Equal(t, "127.0.0.1", got.Peers[0].IP.String())
	require.EqualValues(t, 0x1ae1, got.Peers[0].Port)
}

func TestAnnounceFailureReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := bencode.Dict([]bencode.DictEntry{
			{Key: []byte("failure reason"), Value: bencode.String("unregistered torrent")},
		})
		w.Write(bencode.Marshal(resp))
	}))
	defer srv.Close()

	m := &metainfo.Metainfo{Announce: srv.URL, Info: metainfo.Info{Length: 1}}
	sess, err := session.New()
	require.NoError(t, err)

	_, err = tracker.NewClient(sess).Announce(context.Background(), m, sess)
	require.ErrorIs(t, err, tracker.ErrTrackerProtocol)
	require.Contains(t, err.Error(), "unregistered torrent")
}

func TestAnnounceNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := &metainfo.Metainfo{Announce: srv.URL, Info: metainfo.Info{Length: 1}}
	sess, err := session.New()
	require.NoError(t, err)

	_, err = tracker.NewClient(sess).Announce(context.Background(), m, sess)
	require.ErrorIs(t, err, tracker.ErrTrackerProtocol)
}

func TestParseCompactPeers(t *testing.T) {
	raw := compactPeers(t, [6]byte{10, 0, 0, 1, 0x00, 0x50}, [6]byte{10, 0, 0, 2, 0x01, 0xbb})
	peers, err := tracker.ParseCompactPeers(raw)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	require.Equal(t, "10.0.0.1:80", peers[0].String())
	require.Equal(t, "10.0.0.2:443", peers[1].String())
}

func TestParseCompactPeersInvalidLength(t *testing.T) {
	_, err := tracker.ParseCompactPeers([]byte{1, 2, 3})
	require.ErrorIs(t, err, tracker.ErrInvalidPeerListSize)
}
