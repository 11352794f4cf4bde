package preview

import (
	"fmt"
	"sync"
)

// portAllocator hands out host ports from a configured range under a
// single process-wide mutex, exactly as §5's "Shared-resource policy"
// requires: "Preview port allocation is guarded by a process-wide
// mutex."
type portAllocator struct {
	mu    sync.Mutex
	start int
	end   int
	used  map[int]bool
}

func newPortAllocator(start, end int) *portAllocator {
	return &portAllocator{start: start, end: end, used: map[int]bool{}}
}

// errPortsExhausted is returned when every port in the configured
// range is currently allocated — the ResourceExhausted case §7 names
// for port exhaustion.
var errPortsExhausted = fmt.Errorf("preview: no available ports in configured range")

func (p *portAllocator) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for port := p.start; port <= p.end; port++ {
		if !p.used[port] {
			p.used[port] = true
			return port, nil
		}
	}
	return 0, errPortsExhausted
}

func (p *portAllocator) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.used, port)
}
