package scheduler

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"web3-swaps/internal/harvester/model"
	"web3-swaps/internal/harvester/monitor"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoCredentials 没有可用的上游凭证，属于致命配置错误
var ErrNoCredentials = errors.New("no upstream endpoint credentials configured")

// Credential 一个上游节点凭证及其限流器
// 同一凭证同一时刻最多被一个 worker 持有，限流因此按凭证生效
type Credential struct {
	Endpoint string
	Limiter  *rate.Limiter
}

// CredentialPool 凭证借还队列
type CredentialPool struct {
	ch chan *Credential
}

// NewCredentialPool ratePerMinute <= 0 表示不限流
func NewCredentialPool(endpoints []string, ratePerMinute int) (*CredentialPool, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoCredentials
	}

	ch := make(chan *Credential, len(endpoints))
	for _, endpoint := range endpoints {
		var limiter *rate.Limiter
		if ratePerMinute > 0 {
			limiter = rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60), 1)
		}
		ch <- &Credential{Endpoint: endpoint, Limiter: limiter}
	}
	return &CredentialPool{ch: ch}, nil
}

func (p *CredentialPool) Size() int {
	return cap(p.ch)
}

func (p *CredentialPool) Acquire(ctx context.Context) (*Credential, error) {
	select {
	case cred := <-p.ch:
		return cred, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *CredentialPool) Release(cred *Credential) {
	p.ch <- cred
}

// TaskFunc 在借到的凭证上执行一个日任务
type TaskFunc func(ctx context.Context, cred *Credential, task model.Task) error

// Failure 任务级失败记录，保留失败区间
type Failure struct {
	Task model.Task
	Err  error
}

// Summary 一次运行的汇总，失败任务不影响兄弟任务
type Summary struct {
	Total     int
	Completed int
	Failures  []Failure
	Elapsed   time.Duration
}

// Scheduler 有界 worker 池：W = min(凭证数, 可用并行度)
type Scheduler struct {
	creds *CredentialPool
	chain string
	tl    *zap.Logger
}

func New(creds *CredentialPool, chain string, tl *zap.Logger) *Scheduler {
	return &Scheduler{creds: creds, chain: chain, tl: tl}
}

func (s *Scheduler) Workers() int {
	workers := runtime.GOMAXPROCS(0)
	if s.creds.Size() < workers {
		workers = s.creds.Size()
	}
	return workers
}

// Run 把任务分发给 worker 池执行，完成顺序不保证
func (s *Scheduler) Run(ctx context.Context, tasks []model.Task, run TaskFunc) Summary {
	start := time.Now()
	workers := s.Workers()
	s.tl.Info("dispatching tasks",
		zap.Int("tasks", len(tasks)), zap.Int("workers", workers), zap.Int("credentials", s.creds.Size()))

	var (
		mu        sync.Mutex
		completed int
		failures  []Failure
	)

	worker := pool.New().WithMaxGoroutines(workers)
	for _, task := range tasks {
		worker.Go(func() {
			cred, err := s.creds.Acquire(ctx)
			if err != nil {
				mu.Lock()
				failures = append(failures, Failure{Task: task, Err: err})
				mu.Unlock()
				return
			}
			defer s.creds.Release(cred)

			taskStart := time.Now()
			err = run(ctx, cred, task)
			monitor.TaskDuration.WithLabelValues(s.chain).Observe(time.Since(taskStart).Seconds())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				monitor.TasksFailed.WithLabelValues(s.chain).Inc()
				s.tl.Error("task failed",
					zap.String("label", task.Label),
					zap.Uint64("from", task.FromBlock), zap.Uint64("to", task.ToBlock),
					zap.Error(err))
				failures = append(failures, Failure{Task: task, Err: err})
				return
			}
			monitor.TasksCompleted.WithLabelValues(s.chain).Inc()
			completed++
			s.tl.Info("task complete",
				zap.String("label", task.Label),
				zap.Int("done", completed), zap.Int("total", len(tasks)))
		})
	}
	worker.Wait()

	return Summary{
		Total:     len(tasks),
		Completed: completed,
		Failures:  failures,
		Elapsed:   time.Since(start),
	}
}
