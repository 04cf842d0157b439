// Package portsource selects unused local TCP ports for tests: a randomized
// window scan that skips any port it cannot bind (one already listening or
// connected), coalescing concurrent callers during a reseed with singleflight
// so a request storm moves the window once rather than once per caller.
package portsource

import (
	"fmt"
	"math/rand"
	"net"
	"sync"

	"golang.org/x/sync/singleflight"
)

const (
	minPort      = 2000
	maxPort      = 65535
	windowWidth  = 2000
	maxAttempts  = 5000
	reseedGroup  = "reseed"
)

// Source picks random unused TCP ports within a reseedable window.
type Source struct {
	mu          sync.Mutex
	windowStart int
	used        map[int]struct{}
	group       singleflight.Group

	// probe reports whether port is already in use; overridable in tests.
	probe func(port int) bool
}

// New returns a Source with a freshly seeded window.
func New() *Source {
	s := &Source{used: make(map[int]struct{})}
	s.probe = s.isListening
	s.reseedLocked()
	return s
}

func (s *Source) reseedLocked() {
	s.windowStart = minPort + rand.Intn(maxPort-minPort-windowWidth+1)
}

// Pick returns a random unused port within the current window, reseeding the
// window and trying once more if every attempt in it is taken. Concurrent
// callers that race into a reseed are coalesced: only one of them moves the
// window, and each then probes ports in the new window itself.
func (s *Source) Pick() (int, error) {
	port, err := s.tryWindow()
	if err == nil {
		return port, nil
	}

	_, err = s.group.Do(reseedGroup, func() (interface{}, error) {
		s.mu.Lock()
		s.reseedLocked()
		s.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return 0, err
	}

	return s.tryWindow()
}

func (s *Source) tryWindow() (int, error) {
	s.mu.Lock()
	start := s.windowStart
	s.mu.Unlock()

	for i := 0; i < maxAttempts; i++ {
		port := start + rand.Intn(windowWidth)

		s.mu.Lock()
		_, taken := s.used[port]
		s.mu.Unlock()
		if taken {
			continue
		}

		if s.probe(port) {
			continue
		}

		s.mu.Lock()
		s.used[port] = struct{}{}
		s.mu.Unlock()
		return port, nil
	}
	return 0, fmt.Errorf("portsource: no free port found in window [%d, %d) after %d attempts", start, start+windowWidth, maxAttempts)
}

// Release removes port from the used-set, allowing it to be picked again.
func (s *Source) Release(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.used, port)
}

// isListening reports whether port is already bound by attempting to bind
// it ourselves: success means it was free (and we immediately release it),
// failure means something is already listening or connected there.
func (s *Source) isListening(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return true
	}
	_ = ln.Close()
	return false
}
