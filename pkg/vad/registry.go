package vad

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/speechprep/pkg/types"
)

var (
	// ErrSessionExists is returned by [Registry.Create] for a duplicate ID.
	ErrSessionExists = errors.New("vad: session already exists")

	// ErrSessionNotFound is returned for operations on an unknown ID.
	ErrSessionNotFound = errors.New("vad: session not found")
)

// Session is a registered detector together with the frame buffer and lock
// that serialise access to it.
type Session struct {
	id string

	mu  sync.Mutex
	det *Detector
	buf *FrameBuffer
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Process runs one frame-aligned frame through the session's detector.
func (s *Session) Process(frame []byte, ts time.Duration) (*types.SpeechSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.det.Process(frame, ts)
}

// Write buffers arbitrarily sized PCM and runs every completed frame through
// the detector, returning the segments finalised along the way. Processing
// stops at the first error; frames after it are dropped.
func (s *Session) Write(data []byte, ts time.Duration) ([]types.SpeechSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var segs []types.SpeechSegment
	for _, f := range s.buf.Write(data, ts) {
		seg, err := s.det.Process(f.Data, f.Timestamp)
		if err != nil {
			return segs, err
		}
		if seg != nil {
			segs = append(segs, *seg)
		}
	}
	return segs, nil
}

// Flush finalises any open segment. Bytes short of a whole frame are
// dropped.
func (s *Session) Flush() *types.SpeechSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	return s.det.Flush()
}

// Stats returns the detector statistics.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.det.Stats()
}

// State returns the detector state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.det.State()
}

// Registry maps session IDs to detectors. Only lookups and lifecycle changes
// take the registry lock; processing locks the individual session. Sessions
// are never evicted implicitly: every created session must be removed.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry whose implicitly created sessions use cfg.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vad: invalid config: %w", err)
	}
	return &Registry{cfg: cfg, sessions: make(map[string]*Session)}, nil
}

// Create registers a session with its own configuration.
func (r *Registry) Create(id string, cfg Config, opts ...DetectorOption) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionExists, id)
	}
	return r.createLocked(id, cfg, opts)
}

// GetOrCreate returns the session for id, creating it with the registry's
// default config on first use. created reports whether this call created it.
func (r *Registry) GetOrCreate(id string) (s *Session, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false, nil
	}
	s, err = r.createLocked(id, r.cfg, nil)
	return s, err == nil, err
}

// Config returns the configuration used for implicitly created sessions.
func (r *Registry) Config() Config { return r.cfg }

func (r *Registry) createLocked(id string, cfg Config, opts []DetectorOption) (*Session, error) {
	det, err := NewDetector(cfg, append([]DetectorOption{WithSessionID(id)}, opts...)...)
	if err != nil {
		return nil, err
	}
	s := &Session{id: id, det: det, buf: NewFrameBuffer(cfg)}
	r.sessions[id] = s
	return s, nil
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Process routes one frame to the session for id, creating the session on
// its first frame.
func (r *Registry) Process(id string, frame []byte, ts time.Duration) (*types.SpeechSegment, error) {
	s, _, err := r.GetOrCreate(id)
	if err != nil {
		return nil, err
	}
	return s.Process(frame, ts)
}

// Flush finalises the open segment of session id, if any.
func (r *Registry) Flush(id string) (*types.SpeechSegment, error) {
	s, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return s.Flush(), nil
}

// FlushAll finalises every open segment and returns the segments produced,
// ordered by session ID.
func (r *Registry) FlushAll() []types.SpeechSegment {
	r.mu.Lock()
	sessions := slices.Collect(maps.Values(r.sessions))
	r.mu.Unlock()

	slices.SortFunc(sessions, func(a, b *Session) int { return strings.Compare(a.id, b.id) })
	var segs []types.SpeechSegment
	for _, s := range sessions {
		if seg := s.Flush(); seg != nil {
			segs = append(segs, *seg)
		}
	}
	return segs
}

// Remove unregisters session id, releases its detector and returns its final
// statistics. An open segment is discarded; call Flush first to keep it.
func (r *Registry) Remove(id string) (Stats, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return Stats{}, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.det.Stats()
	if err := s.det.Close(); err != nil {
		return stats, fmt.Errorf("vad: close session %q: %w", id, err)
	}
	return stats, nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sessions returns the registered IDs in sorted order.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.sessions))
}
