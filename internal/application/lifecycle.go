package application

import (
	"context"
	"errors"
	"sync"

	"github.com/bnema/primedictation-export/internal/ports"
)

// Hook runs on a lifecycle transition.
type Hook func(ctx context.Context) error

// Lifecycle fans background and terminate notifications out to registered
// hooks, in registration order.
type Lifecycle struct {
	mu         sync.Mutex
	background []Hook
	foreground []Hook
	terminate  []Hook
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

func (l *Lifecycle) OnBackground(hook Hook) {
	l.mu.Lock()
	l.background = append(l.background, hook)
	l.mu.Unlock()
}

func (l *Lifecycle) OnForeground(hook Hook) {
	l.mu.Lock()
	l.foreground = append(l.foreground, hook)
	l.mu.Unlock()
}

func (l *Lifecycle) OnTerminate(hook Hook) {
	l.mu.Lock()
	l.terminate = append(l.terminate, hook)
	l.mu.Unlock()
}

// EnterBackground runs every background hook and joins their errors.
func (l *Lifecycle) EnterBackground(ctx context.Context) error {
	return run(ctx, l.hooks(&l.background))
}

func (l *Lifecycle) EnterForeground(ctx context.Context) error {
	return run(ctx, l.hooks(&l.foreground))
}

func (l *Lifecycle) Terminate(ctx context.Context) error {
	return run(ctx, l.hooks(&l.terminate))
}

// Flush registers store.Flush for both background and terminate.
func (l *Lifecycle) Flush(store ports.Flusher) {
	l.OnBackground(store.Flush)
	l.OnTerminate(store.Flush)
}

func (l *Lifecycle) hooks(list *[]Hook) []Hook {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Hook(nil), *list...)
}

func run(ctx context.Context, hooks []Hook) error {
	var errs []error
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
