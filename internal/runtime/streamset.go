package runtime

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicetyped/streamasr/internal/speech/stream"
)

// Session is a stream registered with the serving layer.
type Session struct {
	stream *stream.Stream
	buffer *stream.FeatureBuffer

	lastActivity atomic.Int64

	// mu serializes everything that reads or mutates the stream's decode
	// state: batches, resets and result reads.
	mu        sync.Mutex
	lastText  string
	padded    bool
	finalized bool
}

// ID returns the stream id.
func (s *Session) ID() string { return s.stream.ID() }

// Stream returns the underlying stream.
func (s *Session) Stream() *stream.Stream { return s.stream }

// AcceptFrames appends feature frames to the stream's buffer.
func (s *Session) AcceptFrames(frames []float32) error {
	s.touch(time.Now())
	return s.buffer.AcceptFrames(frames)
}

// InputFinished marks the end of the stream's input.
func (s *Session) InputFinished() {
	s.touch(time.Now())
	s.buffer.InputFinished()
}

func (s *Session) touch(now time.Time) { s.lastActivity.Store(now.UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastActivity.Load()) }

// StreamSet is the arena of live sessions keyed by stream id.
type StreamSet struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStreamSet creates an empty set. Sessions idle for longer than ttl are
// returned by Expired; a non-positive ttl disables expiry.
func NewStreamSet(ttl time.Duration) *StreamSet {
	return &StreamSet{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Add registers a stream and its feature buffer.
func (ss *StreamSet) Add(st *stream.Stream, buf *stream.FeatureBuffer) *Session {
	sess := &Session{stream: st, buffer: buf}
	sess.touch(ss.now())

	ss.mu.Lock()
	ss.sessions[st.ID()] = sess
	ss.mu.Unlock()
	return sess
}

// Get looks up a session by stream id.
func (ss *StreamSet) Get(id string) (*Session, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	sess, ok := ss.sessions[id]
	return sess, ok
}

// Remove unregisters a session and returns it.
func (ss *StreamSet) Remove(id string) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	sess, ok := ss.sessions[id]
	if ok {
		delete(ss.sessions, id)
	}
	return sess, ok
}

// Len returns the number of live sessions.
func (ss *StreamSet) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// List returns the live sessions ordered by id.
func (ss *StreamSet) List() []*Session {
	ss.mu.RLock()
	out := make([]*Session, 0, len(ss.sessions))
	for _, sess := range ss.sessions {
		out = append(out, sess)
	}
	ss.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Expired returns the ids of sessions idle for longer than the TTL.
func (ss *StreamSet) Expired() []string {
	if ss.ttl <= 0 {
		return nil
	}
	now := ss.now()

	ss.mu.RLock()
	defer ss.mu.RUnlock()
	var ids []string
	for id, sess := range ss.sessions {
		if now.Sub(sess.idleSince()) > ss.ttl {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
