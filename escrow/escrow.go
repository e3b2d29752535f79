// Package escrow holds key events that failed validation for a recoverable
// reason and may succeed later: the finite tagged bucket set of spec.md §9,
// with a uniform (pre, sn, said) -> envelope layout per bucket and explicit
// drain points the dispatcher re-enters events through when prerequisites
// (prior events, further signatures, witness receipts, delegator seals)
// arrive.
package escrow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind tags one escrow bucket.
type Kind int

const (
	OutOfOrder Kind = iota
	PartiallySigned
	PartiallyWitnessed
	Delegable
	Misfit
)

func (k Kind) String() string {
	switch k {
	case OutOfOrder:
		return "out-of-order"
	case PartiallySigned:
		return "partially-signed"
	case PartiallyWitnessed:
		return "partially-witnessed"
	case Delegable:
		return "delegable"
	case Misfit:
		return "misfit"
	default:
		return "unknown"
	}
}

// Envelope is one escrowed event with everything needed to retry it.
type Envelope struct {
	// ID correlates this envelope across put/drain/expiry log lines.
	ID    uuid.UUID
	Pre   string
	Sn    uint64
	Said  string
	Raw   []byte
	Sigs  []string // controller signature qb64s accumulated so far
	Wigs  []string // witness signature qb64s accumulated so far
	Local bool
	// EscrowedAt drives TTL expiry.
	EscrowedAt time.Time
}

// Store is the in-memory bucket set. The database engine behind a durable
// variant is an external collaborator; this reference keeps the same
// (kind, pre) -> envelopes layout a keyed sub-store would use.
type Store struct {
	mu      sync.Mutex
	buckets map[Kind]map[string][]*Envelope
	ttl     time.Duration
}

// Option adjusts store construction.
type Option func(*Store)

// WithTTL bounds how long an envelope may wait before Prune discards it.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// DefaultTTL is generous: escrows exist to ride out propagation delays,
// not to hold material indefinitely.
const DefaultTTL = time.Hour

// New creates an empty escrow store.
func New(opts ...Option) *Store {
	s := &Store{
		buckets: map[Kind]map[string][]*Envelope{},
		ttl:     DefaultTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Put files env under kind, assigning its correlation ID, and returns that
// ID. A same-said envelope already in the bucket absorbs the new
// signatures instead of duplicating the entry.
func (s *Store) Put(kind Kind, env *Envelope) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.buckets[kind]
	if !ok {
		bucket = map[string][]*Envelope{}
		s.buckets[kind] = bucket
	}
	for _, have := range bucket[env.Pre] {
		if have.Said == env.Said {
			have.Sigs = mergeUnique(have.Sigs, env.Sigs)
			have.Wigs = mergeUnique(have.Wigs, env.Wigs)
			have.Local = have.Local || env.Local
			return have.ID
		}
	}
	if env.ID == uuid.Nil {
		env.ID = uuid.New()
	}
	if env.EscrowedAt.IsZero() {
		env.EscrowedAt = time.Now()
	}
	bucket[env.Pre] = append(bucket[env.Pre], env)
	return env.ID
}

// Drain removes and returns every envelope for pre in kind, in arrival
// order, for the dispatcher to re-enter.
func (s *Store) Drain(kind Kind, pre string) []*Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.buckets[kind]
	if bucket == nil {
		return nil
	}
	out := bucket[pre]
	delete(bucket, pre)
	return out
}

// DrainSaid removes and returns the single envelope for (pre, said), if
// escrowed.
func (s *Store) DrainSaid(kind Kind, pre, said string) *Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.buckets[kind]
	if bucket == nil {
		return nil
	}
	envs := bucket[pre]
	for i, env := range envs {
		if env.Said == said {
			bucket[pre] = append(envs[:i:i], envs[i+1:]...)
			return env
		}
	}
	return nil
}

// Pres returns the identifiers with pending envelopes in kind.
func (s *Store) Pres(kind Kind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.buckets[kind]
	out := make([]string, 0, len(bucket))
	for pre := range bucket {
		out = append(out, pre)
	}
	return out
}

// Len reports the number of envelopes pending in kind.
func (s *Store) Len(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, envs := range s.buckets[kind] {
		n += len(envs)
	}
	return n
}

// Prune discards envelopes older than the TTL as of now, returning what it
// dropped so the caller can log each with its correlation ID.
func (s *Store) Prune(now time.Time) []*Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped []*Envelope
	for _, bucket := range s.buckets {
		for pre, envs := range bucket {
			var keep []*Envelope
			for _, env := range envs {
				if now.Sub(env.EscrowedAt) > s.ttl {
					dropped = append(dropped, env)
					continue
				}
				keep = append(keep, env)
			}
			if len(keep) == 0 {
				delete(bucket, pre)
			} else {
				bucket[pre] = keep
			}
		}
	}
	return dropped
}

func mergeUnique(dst []string, src []string) []string {
	for _, v := range src {
		dup := false
		for _, have := range dst {
			if have == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
