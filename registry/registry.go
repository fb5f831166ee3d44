// Package registry keeps track of chain runtimes indexed by chain id,
// so that a single runtime serves every component interested in a chain.
package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/crosschain/relayd/chain"
	"github.com/crosschain/relayd/config"
	"github.com/crosschain/relayd/ibc"
)

// ChainNotConfiguredError reports a chain id absent from the
// configuration file.
type ChainNotConfiguredError struct {
	ChainID ibc.ChainID
}

func (e *ChainNotConfiguredError) Error() string {
	return fmt.Sprintf("missing chain for id %q in configuration file", e.ChainID)
}

// DriverFactory builds the endpoint driver for a configured chain.
type DriverFactory func(config.ChainConfig) (chain.Driver, error)

// Registry is a deduplicating cache of chain runtimes. It is owned by
// the supervisor task and is not safe for concurrent mutation.
type Registry struct {
	cfg     *config.Config
	factory DriverFactory
	lg      log.Logger

	runtimes map[ibc.ChainID]*chain.Runtime
}

// Option configures a Registry.
type Option func(*Registry)

// WithDriverFactory overrides how endpoint drivers are built. Tests use
// this to substitute mock drivers.
func WithDriverFactory(f DriverFactory) Option {
	return func(r *Registry) { r.factory = f }
}

// New returns a registry over the given configuration. Runtimes are
// spawned lazily by GetOrSpawn.
func New(cfg *config.Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:      cfg,
		factory:  chain.NewRPCDriver,
		lg:       log.New("module", "registry"),
		runtimes: make(map[ibc.ChainID]*chain.Runtime),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Size returns the number of live chain runtimes.
func (r *Registry) Size() int { return len(r.runtimes) }

// Chains returns a handle for every live runtime.
func (r *Registry) Chains() []chain.Handle {
	handles := make([]chain.Handle, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		handles = append(handles, rt.Handle())
	}
	return handles
}

// GetOrSpawn returns a handle for the chain, spawning its runtime first
// if none exists yet.
func (r *Registry) GetOrSpawn(id ibc.ChainID) (chain.Handle, error) {
	if _, err := r.Spawn(id); err != nil {
		return nil, err
	}
	return r.runtimes[id].Handle(), nil
}

// Spawn starts a runtime for the chain unless one is already live.
// It reports whether a runtime was actually started.
func (r *Registry) Spawn(id ibc.ChainID) (bool, error) {
	if _, ok := r.runtimes[id]; ok {
		return false, nil
	}
	chainCfg := r.cfg.FindChain(id)
	if chainCfg == nil {
		return false, &ChainNotConfiguredError{ChainID: id}
	}
	driver, err := r.factory(*chainCfg)
	if err != nil {
		return false, fmt.Errorf("spawning runtime for chain %s: %w", id, err)
	}
	r.runtimes[id] = chain.NewRuntime(driver, chainCfg.PollInterval.Std(), r.lg)
	r.lg.Trace("spawned chain runtime", "chain", id)
	return true, nil
}

// Shutdown terminates the runtime for the chain, if any. Errors from the
// underlying shutdown are logged, not surfaced.
func (r *Registry) Shutdown(id ibc.ChainID) {
	rt, ok := r.runtimes[id]
	if !ok {
		return
	}
	delete(r.runtimes, id)
	if err := rt.Handle().Shutdown(); err != nil {
		r.lg.Warn("chain runtime might have failed to shutdown properly", "chain", id, "err", err)
	}
}

// ShutdownAll terminates every runtime, aggregating shutdown failures.
func (r *Registry) ShutdownAll() error {
	var result *multierror.Error
	for id, rt := range r.runtimes {
		delete(r.runtimes, id)
		if err := rt.Handle().Shutdown(); err != nil {
			result = multierror.Append(result, fmt.Errorf("chain %s: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}
