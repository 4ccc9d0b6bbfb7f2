package processor

import (
	"context"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"face-search-go/internal/core/models"
)

// WorkerPool runs image processing jobs on a fixed set of goroutines.
type WorkerPool struct {
	processor       *ImageProcessor
	jobs            chan *processJob
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
}

type processJob struct {
	ctx      context.Context
	image    *models.Image
	resultCh chan error
}

// NewWorkerPool creates a pool with the given worker count. A count of
// zero uses 75% of the available CPUs, but at least 2 workers.
func NewWorkerPool(processor *ImageProcessor, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = max(2, (runtime.NumCPU()*3)/4)
	}

	log.Infof("Initializing image processing worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		processor:   processor,
		jobs:        make(chan *processJob, workerCount*2),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}
	pool.startWorkers()

	return pool
}

func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		go func(workerID int) {
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case job := <-p.jobs:
					p.runJob(workerID, job)

				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *WorkerPool) runJob(workerID int, job *processJob) {
	p.activeJobsMutex.Lock()
	p.activeJobs++
	jobCount := p.activeJobs
	p.activeJobsMutex.Unlock()

	log.Debugf("Worker %d processing image %s (active jobs: %d)",
		workerID, job.image.ID, jobCount)

	startTime := time.Now()
	claimed, err := p.processor.Process(job.ctx, job.image)
	if !claimed && err == nil {
		log.Debugf("Worker %d: image %s was not claimable", workerID, job.image.ID)
	}

	p.activeJobsMutex.Lock()
	p.activeJobs--
	p.activeJobsMutex.Unlock()

	if job.resultCh != nil {
		select {
		case job.resultCh <- err:
		default:
			log.Warnf("Worker %d: could not send result, channel might be closed", workerID)
		}
	}

	log.Debugf("Worker %d finished image %s in %v", workerID, job.image.ID, time.Since(startTime))
}

// Enqueue schedules an image for background processing without waiting for
// the result. Upload handlers use this so the HTTP response returns while
// extraction is still running.
func (p *WorkerPool) Enqueue(image *models.Image) {
	select {
	case <-p.shutdown:
		log.WithField("image_id", image.ID).Warn("Worker pool is shut down, dropping job")
		return
	default:
	}

	job := &processJob{
		ctx:   context.Background(),
		image: image,
	}
	select {
	case p.jobs <- job:
	case <-p.shutdown:
		log.WithField("image_id", image.ID).Warn("Worker pool is shut down, dropping job")
	}
}

// Process runs an image through the pool and waits for the outcome.
func (p *WorkerPool) Process(ctx context.Context, image *models.Image) error {
	resultCh := make(chan error, 1)
	job := &processJob{
		ctx:      ctx,
		image:    image,
		resultCh: resultCh,
	}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveJobCount returns the number of jobs currently being processed.
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// WorkerCount returns the number of workers in the pool.
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}

// QueueCapacity returns the capacity of the job queue.
func (p *WorkerPool) QueueCapacity() int {
	return cap(p.jobs)
}

// Shutdown stops all workers. Queued jobs are dropped. The job channel
// stays open so late Enqueue calls cannot panic on a closed channel.
func (p *WorkerPool) Shutdown() {
	close(p.shutdown)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
