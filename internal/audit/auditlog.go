package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Entry is one audit record. Each entry's hash chains over the previous
// one, so truncation or edits are detectable with Verify.
type Entry struct {
	TS   int64  `json:"ts"`
	What string `json:"what"`
	Hash string `json:"hash"`
}

// Log is an append-only trail of identity and key-lifecycle events.
// Writes to the optional sink are best-effort; an audit failure never
// fails the request it describes.
type Log struct {
	mu       sync.Mutex
	lastHash []byte
	entries  []Entry
	sink     io.Writer
}

func New(sink io.Writer) *Log { return &Log{sink: sink} }

func (l *Log) Append(format string, args ...any) Entry {
	what := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	h := sha256.New()
	h.Write(l.lastHash)
	h.Write([]byte(what))
	sum := h.Sum(nil)
	l.lastHash = sum

	e := Entry{TS: time.Now().Unix(), What: what, Hash: hex.EncodeToString(sum)}
	l.entries = append(l.entries, e)

	if l.sink != nil {
		if b, err := json.Marshal(e); err == nil {
			_, _ = l.sink.Write(append(b, '\n'))
		}
	}
	return e
}

func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var prev []byte
	for _, e := range l.entries {
		h := sha256.New()
		h.Write(prev)
		h.Write([]byte(e.What))
		sum := h.Sum(nil)
		if hex.EncodeToString(sum) != e.Hash {
			return fmt.Errorf("audit chain broken at ts=%d", e.TS)
		}
		prev = sum
	}
	return nil
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
