package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/transaction"
)

// DefaultHookTimeout bounds a single plugin call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so dispatch never type-asserts per event.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onAccountCreated     []OnAccountCreated
	onAccountRenamed     []OnAccountRenamed
	onTransferCompleted  []OnTransferCompleted
	onTransferFailed     []OnTransferFailed
	onFatalInconsistency []OnFatalInconsistency
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnAccountRenamed); ok {
		r.onAccountRenamed = append(r.onAccountRenamed, v)
	}
	if v, ok := p.(OnTransferCompleted); ok {
		r.onTransferCompleted = append(r.onTransferCompleted, v)
	}
	if v, ok := p.(OnTransferFailed); ok {
		r.onTransferFailed = append(r.onTransferFailed, v)
	}
	if v, ok := p.(OnFatalInconsistency); ok {
		r.onFatalInconsistency = append(r.onFatalInconsistency, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces returns the hook names a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	check(reflect.TypeOf((*OnAccountCreated)(nil)).Elem(), "OnAccountCreated")
	check(reflect.TypeOf((*OnAccountRenamed)(nil)).Elem(), "OnAccountRenamed")
	check(reflect.TypeOf((*OnTransferCompleted)(nil)).Elem(), "OnTransferCompleted")
	check(reflect.TypeOf((*OnTransferFailed)(nil)).Elem(), "OnTransferFailed")
	check(reflect.TypeOf((*OnFatalInconsistency)(nil)).Elem(), "OnFatalInconsistency")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnInit", p.Name(), func(ctx context.Context) error {
			return p.OnInit(ctx, ledger)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnShutdown", p.Name(), p.OnShutdown)
	}
}

// EmitAccountCreated calls OnAccountCreated for all plugins that implement it.
func (r *Registry) EmitAccountCreated(ctx context.Context, a *account.Account) {
	r.mu.RLock()
	plugins := r.onAccountCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnAccountCreated", p.Name(), func(ctx context.Context) error {
			return p.OnAccountCreated(ctx, a.Clone())
		})
	}
}

// EmitAccountRenamed calls OnAccountRenamed for all plugins that implement it.
func (r *Registry) EmitAccountRenamed(ctx context.Context, identity, oldName, newName string) {
	r.mu.RLock()
	plugins := r.onAccountRenamed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnAccountRenamed", p.Name(), func(ctx context.Context) error {
			return p.OnAccountRenamed(ctx, identity, oldName, newName)
		})
	}
}

// EmitTransferCompleted calls OnTransferCompleted for all plugins that implement it.
func (r *Registry) EmitTransferCompleted(ctx context.Context, t *transaction.Transaction) {
	r.mu.RLock()
	plugins := r.onTransferCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnTransferCompleted", p.Name(), func(ctx context.Context) error {
			c := *t
			return p.OnTransferCompleted(ctx, &c)
		})
	}
}

// EmitTransferFailed calls OnTransferFailed for all plugins that implement it.
func (r *Registry) EmitTransferFailed(ctx context.Context, attempt TransferAttempt, err error) {
	r.mu.RLock()
	plugins := r.onTransferFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnTransferFailed", p.Name(), func(ctx context.Context) error {
			return p.OnTransferFailed(ctx, attempt, err)
		})
	}
}

// EmitFatalInconsistency calls OnFatalInconsistency for all plugins that
// implement it. Failures here are logged at error level since this is the
// alerting path.
func (r *Registry) EmitFatalInconsistency(ctx context.Context, attempt TransferAttempt, err error) {
	r.mu.RLock()
	plugins := r.onFatalInconsistency
	r.mu.RUnlock()

	for _, p := range plugins {
		if hookErr := r.callWithTimeout(ctx, p.Name(), func(ctx context.Context) error {
			return p.OnFatalInconsistency(ctx, attempt, err)
		}); hookErr != nil {
			r.logger.Error("plugin OnFatalInconsistency failed",
				"plugin", p.Name(),
				"error", hookErr,
			)
		}
	}
}

// dispatch runs one hook and logs its failure.
func (r *Registry) dispatch(ctx context.Context, hook, name string, fn func(ctx context.Context) error) {
	if err := r.callWithTimeout(ctx, name, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", name,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the transfer pipeline. The hook context is
// detached from the caller's cancellation.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func(ctx context.Context) error) error {
	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- fn(hookCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-hookCtx.Done():
		return fmt.Errorf("plugin timeout: %s", pluginName)
	}
}
