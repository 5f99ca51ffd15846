// Package supervisor é a fronteira de falhas das goroutines de fundo. Nenhuma
// falha de tarefa derruba o processo: ela é registrada e contida aqui.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(parent context.Context, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Supervisor{ctx: ctx, cancel: cancel, logger: logger}
}

// Context é cancelado quando o pai termina, Stop é chamado ou uma tarefa crítica falha.
func (s *Supervisor) Context() context.Context { return s.ctx }

// Go executa fn em segundo plano. Erros e panics são registrados e contidos.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.spawn(name, false, fn)
}

// GoCritical é como Go, mas uma falha encerra o contexto do supervisor.
func (s *Supervisor) GoCritical(name string, fn func(ctx context.Context) error) {
	s.spawn(name, true, fn)
}

func (s *Supervisor) spawn(name string, critical bool, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := s.run(fn)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		s.logger.Error("background task failed",
			slog.String("task", name),
			slog.Bool("critical", critical),
			slog.Any("error", err),
		)
		if critical {
			s.cancel(fmt.Errorf("task %s: %w", name, err))
		}
	}()
}

func (s *Supervisor) run(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return fn(s.ctx)
}

// Stop cancela o contexto e espera todas as tarefas.
func (s *Supervisor) Stop() {
	s.cancel(nil)
	s.wg.Wait()
}

// Cause devolve o motivo do cancelamento, se houver.
func (s *Supervisor) Cause() error {
	return context.Cause(s.ctx)
}
