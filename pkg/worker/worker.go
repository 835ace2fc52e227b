// Package worker pulls submissions off the task queue and runs them through
// the processor, one scratch directory per task.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ghidra_auto_analysis/analysis-service/pkg/metrics"
	"ghidra_auto_analysis/analysis-service/pkg/processor"
	"ghidra_auto_analysis/analysis-service/pkg/result"
	"ghidra_auto_analysis/analysis-service/pkg/storage"
	"ghidra_auto_analysis/analysis-service/pkg/task"
)

// Upper bound on saving a record once its task is finished.
var saveTimeout = 10 * time.Second

// Executor runs the analysis of one submission.
type Executor interface {
	Execute(ctx context.Context, req processor.Request) error
}

// Queue hands out submissions. Pop returns storage.ErrQueueEmpty after timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*storage.Message, error)
}

// RecordStore persists finished task records.
type RecordStore interface {
	Save(ctx context.Context, rec task.Record) error
}

// ArtifactStore keeps supplementary files after the scratch dir is removed.
type ArtifactStore interface {
	Put(sup result.Supplementary) (string, error)
}

// Config tunes a Pool. Zero values fall back to defaults in New.
type Config struct {
	Workers     int
	WorkDir     string
	TaskTimeout time.Duration
	PopTimeout  time.Duration
	RetryDelay  time.Duration
}

// Pool runs Config.Workers workers against one queue.
type Pool struct {
	log       logrus.FieldLogger
	cfg       Config
	exec      Executor
	queue     Queue
	records   RecordStore
	artifacts ArtifactStore
}

// New creates a pool. Nothing runs until Run is called.
func New(log logrus.FieldLogger, cfg Config, exec Executor, queue Queue, records RecordStore, artifacts ArtifactStore) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PopTimeout == 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &Pool{
		log:       log.WithField("component", "worker"),
		cfg:       cfg,
		exec:      exec,
		queue:     queue,
		records:   records,
		artifacts: artifacts,
	}
}

// Run processes tasks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Infof("starting %d workers", p.cfg.Workers)
	errg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		log := p.log.WithField("worker", i)
		errg.Go(func() error {
			return p.loop(ctx, log)
		})
	}
	return errg.Wait()
}

func (p *Pool) loop(ctx context.Context, log logrus.FieldLogger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := p.queue.Pop(ctx, p.cfg.PopTimeout)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, storage.ErrQueueEmpty):
			case errors.Is(err, storage.ErrInvalidMessage):
				log.Warnf("dropping task: %v", err)
			default:
				log.Errorf("reading task queue: %v", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(p.cfg.RetryDelay):
				}
			}
			continue
		}

		rec, err := p.Handle(ctx, *msg)
		if err != nil {
			log.Errorf("saving task %s: %v", msg.SID, err)
			continue
		}
		if rec.Failed() {
			log.Warnf("task %s (%s) failed: %s", rec.SID, msg.FileName, rec.Error)
		} else {
			log.Infof("task %s (%s) done", rec.SID, msg.FileName)
		}
	}
}

// Handle runs one task and saves its record. The returned error is only about
// saving; analysis failures end up in the record. The record is saved even
// when ctx is cancelled while the task runs.
func (p *Pool) Handle(ctx context.Context, msg storage.Message) (task.Record, error) {
	start := time.Now()
	rec, taskErr := p.run(ctx, msg)

	metrics.IncTasksTotal(taskErr)
	metrics.ObserveTaskDuration(start)
	if rec.Result != nil {
		for _, s := range rec.Result.Sections {
			for _, typ := range s.Tags.Types() {
				metrics.AddTags(typ, len(s.Tags.Get(typ)))
			}
		}
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	return rec, p.records.Save(saveCtx, rec)
}

// run returns the task record and the error that failed the task, if any.
func (p *Pool) run(ctx context.Context, msg storage.Message) (task.Record, error) {
	failed := func(err error) (task.Record, error) {
		now := time.Now().UTC()
		return task.Record{
			SID:         msg.SID,
			FileName:    msg.FileName,
			Error:       err.Error(),
			StartedAt:   now,
			CompletedAt: now,
		}, err
	}

	scratch, err := os.MkdirTemp(p.cfg.WorkDir, "task-")
	if err != nil {
		return failed(fmt.Errorf("creating scratch dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			p.log.Warnf("removing scratch dir %s: %v", scratch, err)
		}
	}()

	tsk, err := task.New(msg.SID, msg.FilePath, msg.FileName, scratch)
	if err != nil {
		return failed(err)
	}

	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	if err := p.exec.Execute(ctx, tsk); err != nil {
		return tsk.Record(err), err
	}

	rec := tsk.Record(nil)
	for i, sup := range rec.Supplementary {
		stored, err := p.artifacts.Put(sup)
		if err != nil {
			err = fmt.Errorf("storing supplementary %s: %w", sup.Name, err)
			return tsk.Record(err), err
		}
		rec.Supplementary[i].Path = stored
	}
	return rec, nil
}
