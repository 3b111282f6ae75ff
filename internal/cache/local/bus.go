// Package local provides in-process stand-ins for the Redis-backed event bus
// and locks, used when Redis is disabled.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

const (
	subscriberBuffer = 128
	streamMaxLen     = 1000
)

// Bus is an in-process domain.SignalBus. Slow subscribers drop messages
// rather than block publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[chan []byte]struct{}
	streams map[string][][]byte
}

func NewBus() *Bus {
	return &Bus{
		subs:    make(map[string]map[chan []byte]struct{}),
		streams: make(map[string][][]byte),
	}
}

func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is cancelled, then closes the
// returned channel.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := append(b.streams[stream], payload)
	if len(s) > streamMaxLen {
		s = s[len(s)-streamMaxLen:]
	}
	b.streams[stream] = s
	return nil
}

// Stream returns a copy of the journal for stream.
func (b *Bus) Stream(stream string) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([][]byte(nil), b.streams[stream]...)
}

// Locks is an in-process domain.LockManager. TTLs are honoured lazily on the
// next Acquire.
type Locks struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocks() *Locks {
	return &Locks{held: make(map[string]time.Time), now: time.Now}
}

func (l *Locks) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, domain.ErrLockHeld
	}
	exp := now.Add(ttl)
	l.held[key] = exp

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key].Equal(exp) {
				delete(l.held, key)
			}
		})
	}, nil
}

var (
	_ domain.SignalBus   = (*Bus)(nil)
	_ domain.LockManager = (*Locks)(nil)
)
