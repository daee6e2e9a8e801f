package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Frank2Yang/pdf-paper-converter/internal/render"
	"github.com/Frank2Yang/pdf-paper-converter/internal/service"
	"github.com/Frank2Yang/pdf-paper-converter/internal/storage"
)

// Converter is the conversion dependency of the manager.
type Converter interface {
	Convert(ctx context.Context, f *service.StagedFile, req service.Request, progress service.ProgressFunc) service.Result
}

type task struct {
	job   *Job
	files []*service.StagedFile
	req   service.Request
}

// Config tunes the worker pool.
type Config struct {
	Workers   int
	QueueSize int
}

// Manager queues jobs and runs them on a fixed pool of workers.
type Manager struct {
	conv    Converter
	store   Store
	archive storage.Store
	logger  *zap.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan task
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewManager starts the workers. archive may be nil.
func NewManager(conv Converter, store Store, archive storage.Store, logger *zap.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		conv:    conv,
		store:   store,
		archive: archive,
		logger:  logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan task, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Submit records a queued job for the staged files and hands it to the
// pool. The manager owns the files from here on and cleans them up.
func (m *Manager) Submit(ctx context.Context, files []*service.StagedFile, req service.Request) (*Job, error) {
	now := m.now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, f := range files {
		job.Files = append(job.Files, f.Name)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		cleanupAll(files)
		return nil, ErrClosed
	}
	if err := m.store.Save(ctx, job); err != nil {
		cleanupAll(files)
		return nil, err
	}
	// The worker owns job once it is queued.
	snapshot := job.clone()
	select {
	case m.queue <- task{job: job, files: files, req: req}:
	default:
		cleanupAll(files)
		job.Status = StatusFailed
		job.Message = ErrQueueFull.Error()
		job.UpdatedAt = m.now().UTC()
		if err := m.store.Save(ctx, job); err != nil {
			m.logger.Warn("record rejected job", zap.String("job", job.ID), zap.Error(err))
		}
		return nil, ErrQueueFull
	}
	m.logger.Info("job queued", zap.String("job", snapshot.ID), zap.Int("files", len(files)))
	return snapshot, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, limit int) ([]*Job, error) {
	return m.store.List(ctx, limit)
}

// Close stops accepting jobs, lets queued jobs finish and waits for the
// workers. If ctx ends first, running conversions are cancelled.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for t := range m.queue {
		m.run(t)
	}
}

func (m *Manager) run(t task) {
	job := t.job
	log := m.logger.With(zap.String("job", job.ID))
	defer cleanupAll(t.files)

	m.update(job, StatusRunning, 0, "running")
	n := float64(len(t.files))
	for i, f := range t.files {
		progress := func(p float64, msg string) {
			m.update(job, StatusRunning, (float64(i)+p)/n, fmt.Sprintf("%s: %s", f.Name, msg))
		}
		res := m.conv.Convert(m.ctx, f, t.req, progress)
		f.Cleanup()
		if res.Success && m.archive != nil {
			res.Files = m.archiveOutputs(job.ID, i, res)
		}
		job.Results = append(job.Results, res)
	}

	status := finalStatus(job.Results)
	m.update(job, status, 1, string(status))
	log.Info("job finished", zap.String("status", string(status)))
}

func (m *Manager) update(job *Job, status Status, progress float64, msg string) {
	job.Status = status
	job.Progress = progress
	job.Message = msg
	job.UpdatedAt = m.now().UTC()
	// Status writes outlive cancellation so a cancelled job still ends up failed.
	if err := m.store.Save(context.WithoutCancel(m.ctx), job); err != nil {
		m.logger.Warn("save job", zap.String("job", job.ID), zap.Error(err))
	}
}

// archiveOutputs uploads every rendered output. A failed upload is logged
// and skipped; the conversion itself still counts as successful.
func (m *Manager) archiveOutputs(jobID string, index int, res service.Result) map[render.Format]string {
	uris := make(map[render.Format]string, len(res.Outputs))
	for format, content := range res.Outputs {
		key := fmt.Sprintf("%s/%02d-%s.%s", jobID, index, service.Stem(res.FileName), format.Ext())
		uri, err := m.archive.Save(m.ctx, key, format.ContentType(), []byte(content))
		if err != nil {
			m.logger.Warn("archive output", zap.String("job", jobID), zap.String("key", key), zap.Error(err))
			continue
		}
		uris[format] = uri
	}
	return uris
}

func cleanupAll(files []*service.StagedFile) {
	for _, f := range files {
		f.Cleanup()
	}
}
