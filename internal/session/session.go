// Package session carries the per-download identity and tunables that
// would otherwise be free-floating globals: the client's peer id, its
// announce port, and the concurrency/timeout knobs the coordinator and
// tracker client share.
package session

import (
	cryptorand "crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Default tunables (spec §5).
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultPort           = 6881
	MaxWorkerCap          = 5
)

// Session is the identity and configuration of one client run.
type Session struct {
	// PeerID is the 20-byte client identifier sent in handshakes and
	// tracker announces.
	PeerID string
	// RunID uniquely names this process invocation. New folds its bytes
	// into the random PeerID suffix; nothing else reads it.
	RunID uuid.UUID

	Port           uint16
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// WorkerCap bounds how many peer workers the coordinator spawns
	// concurrently, independent of how many peers the tracker returned.
	WorkerCap int
}

// New builds a Session with the teacher's "-GT0001-" peer-id prefix
// convention, filled out with cryptographically random suffix bytes folded
// together with a fresh UUID for extra entropy.
func New() (*Session, error) {
	runID := uuid.New()

	const prefix = "-GT0001-"
	const peerIDLength = 20
	suffixLen := peerIDLength - len(prefix)

	raw := make([]byte, suffixLen)
	if _, err := cryptorand.Read(raw); err != nil {
		return nil, fmt.Errorf("session: generating peer id entropy: %w", err)
	}

	runBytes := runID[:]
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, suffixLen)
	for i := range suffix {
		mixed := raw[i] ^ runBytes[i%len(runBytes)]
		suffix[i] = alphabet[int(mixed)%len(alphabet)]
	}

	return &Session{
		PeerID:         prefix + string(suffix),
		RunID:          runID,
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		WorkerCap:      MaxWorkerCap,
	}, nil
}

// WorkerCount returns min(peerCount, s.WorkerCap), the number of workers the
// coordinator should spawn for a swarm of peerCount discovered peers.
func (s *Session) WorkerCount(peerCount int) int {
	if peerCount < s.WorkerCap {
		return peerCount
	}
	return s.WorkerCap
}
