// Package scheduler запускает периодические фоновые задачи.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task — одна периодическая задача. Задача обязана быть идемпотентной:
// планировщик защищает только от наложения запусков одной и той же задачи.
type Task func(ctx context.Context) error

// Scheduler запускает именованные задачи с фиксированным интервалом.
type Scheduler struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New создаёт планировщик с указанным логгером.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Every запускает задачу с указанным интервалом до отмены контекста.
// Если предыдущий запуск ещё выполняется, очередной тик пропускается.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, name string, task Task) {
	var inFlight atomic.Bool

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !inFlight.CompareAndSwap(false, true) {
					s.logger.Warn("previous run still in progress, skipping tick", zap.String("job", name))
					continue
				}

				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					defer inFlight.Store(false)

					if err := task(ctx); err != nil {
						s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
					}
				}()
			}
		}
	}()
}

// Wait блокируется до завершения всех запущенных задач.
// Вызывается после отмены контекста при остановке сервиса.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
