package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clinika/medrag/internal/domain"
	"github.com/clinika/medrag/internal/metrics"
)

// ErrQueueFull is returned when the ingestion queue has no room. Callers
// decide whether to retry, drop, or fall back to synchronous indexing.
var ErrQueueFull = errors.New("index queue full")

// ErrClosed is returned when submitting to a service that has been shut down.
var ErrClosed = errors.New("index service closed")

// Kind distinguishes queued jobs.
type Kind string

const (
	KindUpsert Kind = "upsert"
	KindDelete Kind = "delete"
)

// Job is one unit of ingestion work.
type Job struct {
	Kind       Kind
	Collection string
	ID         string
	Text       string
	Metadata   map[string]string
}

// Config sizes the queue and worker pool.
type Config struct {
	QueueSize  int
	Workers    int
	JobTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
}

// Service runs asynchronous document ingestion: a bounded queue fed by
// Submit and drained by a fixed pool of workers. Queue pressure is visible
// to callers as ErrQueueFull instead of unbounded goroutine growth.
type Service struct {
	vectors VectorWriter
	embed   Embedder
	logger  *zap.Logger

	jobTimeout time.Duration
	queue      chan Job

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates the service and starts its workers immediately.
func New(vectors VectorWriter, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	s := &Service{
		vectors:    vectors,
		embed:      embed,
		logger:     logger,
		jobTimeout: cfg.JobTimeout,
		queue:      make(chan Job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Submit enqueues a job without blocking. A full queue is the caller's
// problem to handle, not a reason to spawn more goroutines.
func (s *Service) Submit(job Job) error {
	if err := validate(job); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- job:
		metrics.IndexQueueDepth.Set(float64(len(s.queue)))
		return nil
	default:
		metrics.IndexJobsTotal.WithLabelValues(string(job.Kind), "rejected").Inc()
		return fmt.Errorf("%s %s/%s: %w", job.Kind, job.Collection, job.ID, ErrQueueFull)
	}
}

// IndexDocument runs an upsert synchronously, bypassing the queue. Used for
// bulk loads at startup where backpressure is pointless.
func (s *Service) IndexDocument(ctx context.Context, job Job) error {
	job.Kind = KindUpsert
	if err := validate(job); err != nil {
		return err
	}
	return s.upsert(ctx, job)
}

// Close stops accepting jobs, drains the queue, and waits for workers.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

// QueueDepth reports the number of jobs waiting for a worker.
func (s *Service) QueueDepth() int {
	return len(s.queue)
}

func (s *Service) worker() {
	defer s.wg.Done()
	for job := range s.queue {
		metrics.IndexQueueDepth.Set(float64(len(s.queue)))
		s.run(job)
	}
}

func (s *Service) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	var err error
	switch job.Kind {
	case KindUpsert:
		err = s.upsert(ctx, job)
	case KindDelete:
		_, err = s.vectors.Delete(ctx, job.Collection, []string{job.ID})
	default:
		err = fmt.Errorf("unknown job kind %q: %w", job.Kind, domain.ErrInvalidArgument)
	}

	if err != nil {
		metrics.IndexJobsTotal.WithLabelValues(string(job.Kind), "error").Inc()
		s.logger.Error("Index job failed",
			zap.String("kind", string(job.Kind)),
			zap.String("collection", job.Collection),
			zap.String("id", job.ID),
			zap.Error(err),
		)
		return
	}
	metrics.IndexJobsTotal.WithLabelValues(string(job.Kind), "ok").Inc()
}

func (s *Service) upsert(ctx context.Context, job Job) error {
	embResult, err := s.embed.Embed(ctx, job.Text)
	if err != nil {
		return fmt.Errorf("vectorize %s/%s: %w", job.Collection, job.ID, err)
	}
	if len(embResult.Embedding) == 0 {
		return fmt.Errorf("empty text for %s/%s: %w", job.Collection, job.ID, domain.ErrInvalidArgument)
	}

	doc := domain.Document{
		Collection: job.Collection,
		ID:         job.ID,
		Text:       job.Text,
		Metadata:   job.Metadata,
		Vector:     embResult.Embedding,
	}
	if err := s.vectors.Upsert(ctx, job.Collection, []domain.Document{doc}); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", job.Collection, job.ID, err)
	}
	return nil
}

func validate(job Job) error {
	if job.Collection == "" {
		return fmt.Errorf("collection is required: %w", domain.ErrInvalidArgument)
	}
	if job.ID == "" {
		return fmt.Errorf("document id is required: %w", domain.ErrInvalidArgument)
	}
	if job.Kind == KindUpsert && job.Text == "" {
		return fmt.Errorf("document text is required: %w", domain.ErrInvalidArgument)
	}
	return nil
}
