// Package download implements the peer manager / coordinator (spec §4.6):
// it fans a swarm of peer endpoints out into a bounded worker pool sharing
// a work queue of pieces, and assembles the completed, order-restored
// pieces into the output file.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"mybittorrent/internal/session"
	"mybittorrent/metainfo"
	"mybittorrent/peer"
	"mybittorrent/piece"
)

// ErrInsufficientPeers is returned when every worker has exited (each
// having hit a fatal connection error in turn) while pieces remain
// unfinished — there is nobody left to drain the work queue.
var ErrInsufficientPeers = errors.New("download: insufficient peers to complete download")

// ErrOutputWriteFailed wraps a failure to write the assembled file.
var ErrOutputWriteFailed = errors.New("download: writing output failed")

// pieceResult is one completed, verified piece flowing back from a worker.
type pieceResult struct {
	index int
	data  []byte
}

// Coordinator orchestrates a full single-file download across a swarm of
// peer endpoints.
type Coordinator struct {
	Session *session.Session

	// ShowProgress enables a terminal progress bar (wired to the CLI's
	// `download` command; disabled by default so library/test callers
	// don't write to stdout).
	ShowProgress bool
}

// NewCoordinator builds a Coordinator bound to sess.
func NewCoordinator(sess *session.Session) *Coordinator {
	return &Coordinator{Session: sess}
}

// Run downloads every piece of m from peers, writing the assembled file to
// outputPath. It returns once the file is fully written or a fatal error
// occurs.
func (c *Coordinator) Run(ctx context.Context, m *metainfo.Metainfo, infoHash [20]byte, peers []string, outputPath string) error {
	table := m.PieceTable()
	if len(table) == 0 {
		return os.WriteFile(outputPath, nil, 0o644)
	}

	workerCount := c.Session.WorkerCount(len(peers))
	if workerCount == 0 {
		return ErrInsufficientPeers
	}

	// The work queue is sized to hold every piece plus one slot per peer.
	// A worker only requeues the piece it dequeued itself, so the queue
	// never holds more than piece_count items and a requeue send never
	// blocks.
	workQueue := make(chan metainfo.PieceSpec, len(table)+len(peers))
	for _, spec := range table {
		workQueue <- spec
	}

	results := make(chan pieceResult, len(table))

	var bar *progressbar.ProgressBar
	if c.ShowProgress {
		bar = progressbar.Default(int64(len(table)), fmt.Sprintf("downloading %s", m.Info.Name))
	}

	// Workers block on workQueue waiting for (re)queued work; workerCtx
	// cancellation is what tells an idle worker there is nothing left to
	// do, in place of closing workQueue — which a producer can't do here
	// since requeues make every worker a producer too (spec §5's MPMC
	// requirement rules out simple close-to-stop semantics).
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		addr := peers[i]
		go func(workerID int, addr string) {
			defer wg.Done()
			c.runWorker(workerCtx, workerID, addr, infoHash, workQueue, results)
		}(i, addr)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	pieces := make([]pieceResult, 0, len(table))
	for len(pieces) < len(table) {
		select {
		case r := <-results:
			pieces = append(pieces, r)
			if bar != nil {
				bar.Add(1)
			}
		case <-done:
			if len(pieces) < len(table) {
				return ErrInsufficientPeers
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	cancel()

	sort.Slice(pieces, func(i, j int) bool { return pieces[i].index < pieces[j].index })

	buf := make([]byte, 0, m.Info.Length)
	for _, r := range pieces {
		buf = append(buf, r.data...)
	}

	if err := os.WriteFile(outputPath, buf, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputWriteFailed, err)
	}

	log.Info().Str("output", outputPath).Int("pieces", len(pieces)).Msg("download: complete")
	return nil
}

// runWorker establishes a connection to addr, drives it to Unchoked, then
// repeatedly dequeues a piece and downloads it until ctx is cancelled (Run
// cancels it once every piece has arrived) or a fatal connection error
// forces it to requeue its in-flight piece and exit (spec §4.6 step 4).
func (c *Coordinator) runWorker(ctx context.Context, workerID int, addr string, infoHash [20]byte, workQueue chan metainfo.PieceSpec, results chan<- pieceResult) {
	conn, err := connectAndUnchoke(ctx, addr, infoHash, c.Session)
	if err != nil {
		log.Warn().Int("worker", workerID).Str("peer", addr).Err(err).Msg("download: worker could not connect")
		return
	}
	defer conn.Close()

	for {
		var spec metainfo.PieceSpec
		select {
		case spec = <-workQueue:
		case <-ctx.Done():
			return
		}

		data, err := piece.Download(ctx, conn, spec)
		if err != nil {
			log.Warn().Int("worker", workerID).Str("peer", addr).Int("piece", spec.Index).Err(err).Msg("download: piece failed, requeuing")
			workQueue <- spec
			return
		}

		select {
		case results <- pieceResult{index: spec.Index, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// connectAndUnchoke dials addr, performs the handshake, and exchanges
// Interested/Unchoke so the returned connection is ready to serve
// Download calls.
func connectAndUnchoke(ctx context.Context, addr string, infoHash [20]byte, sess *session.Session) (*peer.Conn, error) {
	conn, err := peer.Dial(ctx, addr, infoHash, sess)
	if err != nil {
		return nil, err
	}

	if err := conn.SendInterested(); err != nil {
		conn.Close()
		return nil, err
	}

	// WaitFor absorbs any Bitfield/Have/Choke messages the peer sends
	// before Unchoke, applying their bookkeeping (so HasPiece reflects
	// the peer's advertised pieces) without treating their arrival order
	// as significant.
	if _, err := conn.WaitFor(peer.MsgUnchoke); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}
