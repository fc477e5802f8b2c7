// Package workpool runs index-range jobs on a fixed set of worker
// goroutines.
//
// A Pool is created for one unit of work and closed when that work is done:
//
//	pool := workpool.New(workers)
//	defer pool.Close()
//	pool.Map(len(jobs), func(i int) { ... })
//
// Map and For block until every job has returned. A panic inside a job is
// re-raised in the calling goroutine after the join.
package workpool

import (
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

type Pool struct {
	workers   int
	jobs      chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts workers goroutines. workers <= 0 uses one per CPU; a single
// worker runs jobs inline without spawning anything.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{workers: workers}
	if workers == 1 {
		return p
	}

	p.jobs = make(chan func())
	p.wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// Size is the number of workers.
func (p *Pool) Size() int { return p.workers }

// For splits [0, n) into at most Size() contiguous chunks of at least
// minChunk indices and runs fn on each.
func (p *Pool) For(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if minChunk < 1 {
		minChunk = 1
	}

	var pc panics.Catcher
	if p.jobs == nil || n <= minChunk {
		pc.Try(func() { fn(0, n) })
		pc.Repanic()
		return
	}

	chunks := p.workers
	if n/minChunk < chunks {
		chunks = n / minChunk
	}
	if chunks < 1 {
		chunks = 1
	}
	size := (n + chunks - 1) / chunks

	var done sync.WaitGroup
	for start := 0; start < n; start += size {
		start := start
		end := start + size
		if end > n {
			end = n
		}
		done.Add(1)
		p.jobs <- func() {
			defer done.Done()
			pc.Try(func() { fn(start, end) })
		}
	}
	done.Wait()
	pc.Repanic()
}

// Map runs fn(i) for every i in [0, n), one job per index.
func (p *Pool) Map(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	var pc panics.Catcher
	if p.jobs == nil {
		for i := 0; i < n; i++ {
			pc.Try(func() { fn(i) })
		}
		pc.Repanic()
		return
	}

	var done sync.WaitGroup
	done.Add(n)
	for i := 0; i < n; i++ {
		i := i
		p.jobs <- func() {
			defer done.Done()
			pc.Try(func() { fn(i) })
		}
	}
	done.Wait()
	pc.Repanic()
}

// Close stops the workers and waits for them to exit. It is safe to call
// more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		if p.jobs != nil {
			close(p.jobs)
			p.wg.Wait()
		}
	})
}
