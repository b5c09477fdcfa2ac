// Package gen implements the asynchronous chunk generation pipeline
// (C7): a bounded job queue drained by a fixed worker pool, each
// worker invoking the external world.Generator and handing the result
// back to whichever caller is waiting on that ChunkPos.
//
// The worker-pool shape (a bounded job channel drained by one dispatcher
// goroutine, a semaphore channel capping concurrent workers, and a
// shutdown channel that drains in-flight workers) is grounded on the compression/promotion/
// eviction pools in the MinIO-derived cache engine reference file
// (internal/cache/cache_engine_v3.go in the retrieval pack).
package gen

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/StoreStation/vibeshitcraft-core/pkg/cache"
	"github.com/StoreStation/vibeshitcraft-core/pkg/metrics"
	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
	"github.com/StoreStation/vibeshitcraft-core/pkg/world"
)

// DefaultQueueCapacity matches SPEC_FULL.md's default worker_pool
// queue depth.
const DefaultQueueCapacity = 256

// Generator is the external terrain algorithm; world.Generator
// satisfies it.
type Generator interface {
	Generate(pos world.ChunkPos) (*world.Chunk, error)
}

// job is either a terrain-generation request (pos set) or an arbitrary
// CPU-bound task submitted via Submit (task set) — spec.md §9 requires
// routing both kinds of work through the same worker pool so a
// cold-loading player's section encoding never starves other
// connections' reads/writes on a connection goroutine.
type job struct {
	pos    world.ChunkPos
	task   func() (any, error)
	result chan jobResult
}

type jobResult struct {
	chunk *world.Chunk
	val   any
	err   error
}

// Pipeline is a bounded job queue plus a fixed worker pool. Its
// Generate method has the cache.Loader signature, so a Pipeline is
// normally wired in as the fallback Loader a region store's Loader
// delegates to on a cache miss: cache.Cache already coalesces
// concurrent callers for the same ChunkPos via singleflight before
// any of them reach Pipeline.Generate, so the "at most one in-flight
// generation per ChunkPos" invariant holds without a second
// singleflight.Group here — see DESIGN.md.
type Pipeline struct {
	jobs    chan *job
	gen     Generator
	workers int
	log     *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// Config configures a new Pipeline.
type Config struct {
	Generator     Generator
	Workers       int // default runtime.NumCPU()
	QueueCapacity int // default DefaultQueueCapacity
	Logger        *zap.Logger
}

// New starts a Pipeline's worker pool.
func New(cfg Config) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		jobs:    make(chan *job, capacity),
		gen:     cfg.Generator,
		workers: workers,
		log:     logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Generate enqueues pos and blocks until a worker produces the chunk,
// using context.Background (no cancellation; see GenerateContext). It
// has the cache.Loader signature, so it can be passed directly as the
// region store's generation fallback.
func (p *Pipeline) Generate(pos world.ChunkPos) (*world.Chunk, error) {
	return p.GenerateContext(context.Background(), pos)
}

// GenerateContext is Generate with caller-supplied cancellation.
func (p *Pipeline) GenerateContext(ctx context.Context, pos world.ChunkPos) (*world.Chunk, error) {
	j := &job{pos: pos, result: make(chan jobResult, 1)}

	metrics.GenerationQueueDepth.Inc()
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		metrics.GenerationQueueDepth.Dec()
		return nil, ctx.Err()
	case <-p.stop:
		metrics.GenerationQueueDepth.Dec()
		return nil, fmt.Errorf("gen: pipeline closed")
	}

	select {
	case res := <-j.result:
		return res.chunk, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit hands an arbitrary CPU-bound task to the same worker pool
// that runs terrain generation, per spec.md §9/§5's mandate that
// serialization and other CPU-bound work for a connection "must run
// on the worker pool, never on the connection task's scheduler." The
// caller blocks until a worker runs fn or ctx is cancelled.
func (p *Pipeline) Submit(ctx context.Context, fn func() (any, error)) (any, error) {
	j := &job{task: fn, result: make(chan jobResult, 1)}

	metrics.GenerationQueueDepth.Inc()
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		metrics.GenerationQueueDepth.Dec()
		return nil, ctx.Err()
	case <-p.stop:
		metrics.GenerationQueueDepth.Dec()
		return nil, fmt.Errorf("gen: pipeline closed")
	}

	select {
	case res := <-j.result:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AsLoader adapts the pipeline to cache.Loader, inserting the freshly
// generated chunk into c before returning it so subsequent misses find
// it resident without a second generation.
func (p *Pipeline) AsLoader(c *cache.Cache) cache.Loader {
	return func(pos world.ChunkPos) (*world.Chunk, error) {
		chunk, err := p.Generate(pos)
		if err != nil {
			return nil, err
		}
		if err := c.Put(pos, chunk); err != nil {
			return nil, err
		}
		return chunk, nil
	}
}

// Close stops accepting new jobs and waits for in-flight workers to
// drain.
func (p *Pipeline) Close() {
	close(p.stop)
	<-p.done
}

func (p *Pipeline) run() {
	defer close(p.done)
	sem := make(chan struct{}, p.workers)
	var pending int
	workerDone := make(chan struct{})

	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			metrics.GenerationQueueDepth.Dec()
			sem <- struct{}{}
			pending++
			go func(j *job) {
				defer func() {
					<-sem
					workerDone <- struct{}{}
				}()
				p.process(j)
			}(j)
		case <-workerDone:
			pending--
		case <-p.stop:
			for pending > 0 {
				<-workerDone
				pending--
			}
			return
		}
	}
}

func (p *Pipeline) process(j *job) {
	if j.task != nil {
		val, err := j.task()
		j.result <- jobResult{val: val, err: err}
		return
	}

	metrics.GenerationInFlight.Inc()
	defer metrics.GenerationInFlight.Dec()

	start := time.Now()
	chunk, err := p.gen.Generate(j.pos)
	metrics.GenerationLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GenerationFailures.Inc()
		wrapped := &protocol.GenerationFailed{Reason: err.Error()}
		p.log.Warn("chunk generation failed", zap.String("chunkPos", j.pos.String()), zap.Error(wrapped))
		j.result <- jobResult{chunk: chunk, err: wrapped}
		return
	}
	j.result <- jobResult{chunk: chunk, err: nil}
}
