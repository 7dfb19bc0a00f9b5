package game

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/multilevel/components"
)

// defaultThreshold is the minimum group count for fan-out when none is
// configured. Below it, single-threaded is faster due to goroutine overhead.
const defaultThreshold = 8

// workChunk is a contiguous range of group indices for one worker.
type workChunk struct {
	start, end int
}

// parallelState holds the worker pool for the play/breed phase.
type parallelState struct {
	numWorkers int
	threshold  int

	// progeny[i] receives group i's offspring; buffers are reused across rounds
	progeny [][]components.Genome

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newParallelState(workers, threshold int) *parallelState {
	numWorkers := runtime.GOMAXPROCS(0)
	if workers > 0 {
		numWorkers = min(workers, numWorkers)
	}
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &parallelState{
		numWorkers: numWorkers,
		threshold:  threshold,
	}
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers(s *Simulation) {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(s)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *parallelState) worker(s *Simulation) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			s.computeChunk(chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// playAndBreed runs the social game and breeding of every group. Groups
// only touch their own agents' ledgers and their own progeny buffer, and no
// agent is created or destroyed until supplant runs after the barrier.
func (s *Simulation) playAndBreed() {
	n := len(s.groups)
	for len(s.parallel.progeny) < n {
		s.parallel.progeny = append(s.parallel.progeny, nil)
	}
	s.reseedGroups(s.collector.Round())

	if !s.cfg.Parallel.Enabled || s.parallel.numWorkers < 2 || n < s.parallel.threshold {
		s.computeChunk(0, n)
		return
	}
	s.computeParallel(n)
}

// computeParallel dispatches one chunk per worker and waits for all of them.
func (s *Simulation) computeParallel(n int) {
	p := s.parallel
	if !p.running {
		p.startWorkers(s)
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end}
		chunksDispatched++
	}

	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}
}

// computeChunk plays and breeds groups [i0, i1) sequentially.
func (s *Simulation) computeChunk(i0, i1 int) {
	for i := i0; i < i1; i++ {
		g := s.groups[i]
		rng := s.groupRNG[i]
		g.PlaySocialGame(s.cfg, rng)
		s.parallel.progeny[i] = g.Breed(s.cfg, rng, s.parallel.progeny[i])
	}
}
