package media

import "sync"

// VideoPool recycles VideoSamples to amortize buffer allocations across
// frames. Acquire returns a sample with a reference count of one; the
// final Release recycles it. Reset discards the free list and invalidates
// outstanding handles: a sample acquired before Reset is dropped, not
// recycled, when it is finally released.
type VideoPool struct {
	mu   sync.Mutex
	free []*VideoSample
	gen  uint64
}

// Acquire returns a recycled or newly allocated sample with refcount 1.
func (p *VideoPool) Acquire() *VideoSample {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s *VideoSample
	if n := len(p.free); n > 0 {
		s = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		s = &VideoSample{pool: p}
	}
	s.gen = p.gen
	s.refs.Store(1)
	return s
}

// Reset invalidates all outstanding handles and empties the free list.
// Called on session close.
func (p *VideoPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.free = nil
}

func (p *VideoPool) recycle(s *VideoSample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.gen != p.gen {
		return // acquired before a Reset, let it go to the GC
	}
	s.Timecode = nil
	p.free = append(p.free, s)
}

// AudioPool recycles AudioSamples. Semantics match VideoPool.
type AudioPool struct {
	mu   sync.Mutex
	free []*AudioSample
	gen  uint64
}

// Acquire returns a recycled or newly allocated sample with refcount 1.
func (p *AudioPool) Acquire() *AudioSample {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s *AudioSample
	if n := len(p.free); n > 0 {
		s = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		s = &AudioSample{pool: p}
	}
	s.gen = p.gen
	s.refs.Store(1)
	return s
}

// Reset invalidates all outstanding handles and empties the free list.
func (p *AudioPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.free = nil
}

func (p *AudioPool) recycle(s *AudioSample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.gen != p.gen {
		return
	}
	s.Timecode = nil
	p.free = append(p.free, s)
}
