package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/queue"
)

const dequeueTimeout = 5 * time.Second

// Store is the persistence the worker needs.
type Store interface {
	GetReel(ctx context.Context, id uuid.UUID) (*models.ReelJob, error)
	FailReel(ctx context.Context, id uuid.UUID, errorMessage string) error
	SetReelOutputURL(ctx context.Context, id uuid.UUID, url string) error
}

// Source delivers render jobs.
type Source interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
	ClearCancel(ctx context.Context, reelID uuid.UUID) error
}

type Uploader interface {
	UploadFile(ctx context.Context, storagePath, localPath, contentType string) error
	GetPublicURL(storagePath string) string
}

// Runner executes one reel; implemented by pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, job *models.ReelJob) (*models.FinalVideo, error)
}

type Worker struct {
	store     Store
	source    Source
	uploader  Uploader
	runner    Runner
	pathFor   func(uuid.UUID) string
	uploadSem chan struct{} // limits concurrent Supabase uploads
}

// New wires a worker. pathFor maps a reel to its storage object path.
func New(store Store, source Source, uploader Uploader, runner Runner, pathFor func(uuid.UUID) string) *Worker {
	return &Worker{
		store:     store,
		source:    source,
		uploader:  uploader,
		runner:    runner,
		pathFor:   pathFor,
		uploadSem: make(chan struct{}, 2),
	}
}

func (w *Worker) uploadWithLimit(ctx context.Context, label string, fn func() error) error {
	log.Printf("[Upload] %s waiting for upload slot...", label)
	select {
	case w.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	log.Printf("[Upload] %s uploading...", label)
	return fn()
}

// Start runs concurrency consumers until ctx is done, then waits for
// in-flight reels to stop.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processQueue(ctx)
		}()
	}

	<-ctx.Done()
	log.Println("[Worker] Shutting down...")
	wg.Wait()
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.source.Dequeue(ctx, queue.QueueRenderReel, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] Error dequeuing: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		log.Printf("[Worker] Processing job %s (reel: %s)", job.ID, job.ReelID)
		if err := w.HandleRenderReel(ctx, job.ReelID); err != nil {
			log.Printf("[Worker] Reel %s: %v", job.ReelID, err)
		}
	}
}

// HandleRenderReel renders, uploads and records one reel. Pipeline failures
// are already recorded by the orchestrator's status sink; the returned
// error is for logging.
func (w *Worker) HandleRenderReel(ctx context.Context, reelID uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker] Reel %s panicked: %v", reelID, r)
			if ferr := w.store.FailReel(context.WithoutCancel(ctx), reelID, fmt.Sprintf("internal error: %v", r)); ferr != nil {
				log.Printf("[Worker] Failed to record panic for %s: %v", reelID, ferr)
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	reel, err := w.store.GetReel(ctx, reelID)
	if err != nil {
		return fmt.Errorf("failed to load reel: %w", err)
	}
	if reel.Status.IsTerminal() {
		log.Printf("[Worker] Reel %s already %s, skipping", reelID, reel.Status)
		return nil
	}
	defer func() {
		if err := w.source.ClearCancel(context.WithoutCancel(ctx), reelID); err != nil {
			log.Printf("[Worker] Failed to clear cancel flag for %s: %v", reelID, err)
		}
	}()

	final, err := w.runner.Run(ctx, reel)
	if errors.Is(err, models.ErrCancelled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	storagePath := w.pathFor(reelID)
	if err := w.uploadWithLimit(ctx, reelID.String(), func() error {
		return w.uploader.UploadFile(ctx, storagePath, final.Path, "video/mp4")
	}); err != nil {
		// the reel is complete locally; output_path still points at it
		return fmt.Errorf("upload failed, keeping %s: %w", final.Path, err)
	}

	if err := w.store.SetReelOutputURL(context.WithoutCancel(ctx), reelID, w.uploader.GetPublicURL(storagePath)); err != nil {
		return fmt.Errorf("failed to record output: %w", err)
	}
	if err := os.Remove(final.Path); err != nil {
		log.Printf("[Worker] Failed to remove local output %s: %v", final.Path, err)
	}
	log.Printf("[Worker] Reel %s uploaded to %s (%.1fs)", reelID, storagePath, final.Duration)
	return nil
}
