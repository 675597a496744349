// Package hook provides the hook-point registry that every pipeline resolves
// its contracts from.
//
// A contract is a Go interface type. For each contract the registry holds an
// optional singleton slot and an ordered multi-cast list. Pipelines read the
// registry through Ordered, which treats the singleton as the innermost (first
// registered) link so the same walk serves singleton, multi-cast, and
// "multi-cast then singleton fallback" contracts.
//
// A Configuration is build-then-freeze: registration happens while the API is
// being configured, Freeze is called once, and from then on reads take no lock.
package hook

import (
	"errors"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/roach88/hookpoint/internal/apierr"
)

// ErrNilHookPoint is returned when a nil handler is registered.
var ErrNilHookPoint = errors.New("hook: nil hook point")

// Order selects the direction a multi-cast list is walked.
type Order int

const (
	// Original walks hook points in registration order.
	Original Order = iota

	// Reverse walks the most recently registered hook point first.
	Reverse
)

// String returns the order name used in logs.
func (o Order) String() string {
	if o == Reverse {
		return "reverse"
	}
	return "original"
}

// Configuration owns the hook-point registrations for one API.
type Configuration struct {
	mu         sync.Mutex
	singletons map[reflect.Type]any
	chains     map[reflect.Type][]any
	frozen     atomic.Bool
}

// NewConfiguration creates an empty, unfrozen configuration.
func NewConfiguration() *Configuration {
	return &Configuration{
		singletons: make(map[reflect.Type]any),
		chains:     make(map[reflect.Type][]any),
	}
}

// Freeze ends the registration phase. Further registration returns
// CONFIGURATION_FROZEN. Freeze is idempotent.
func (c *Configuration) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.frozen.Swap(true) {
		slog.Debug("configuration frozen", "contracts", len(c.contractSet()))
	}
}

// Frozen reports whether Freeze has been called.
func (c *Configuration) Frozen() bool {
	return c.frozen.Load()
}

func contractOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// lock acquires the registry mutex for a mutation, failing once frozen.
func (c *Configuration) lock(contract reflect.Type) error {
	c.mu.Lock()
	if c.frozen.Load() {
		c.mu.Unlock()
		return apierr.NewFrozen(contract.String())
	}
	return nil
}

// rlock guards a read. After Freeze the maps are immutable and no lock is taken.
func (c *Configuration) rlock() func() {
	if c.frozen.Load() {
		return func() {}
	}
	c.mu.Lock()
	return c.mu.Unlock
}

// AddHookPoint appends h to the multi-cast list for contract T.
func AddHookPoint[T any](c *Configuration, h T) error {
	if any(h) == nil {
		return ErrNilHookPoint
	}
	t := contractOf[T]()
	if err := c.lock(t); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.chains[t] = append(c.chains[t], h)
	slog.Debug("hook point added", "contract", t.String(), "position", len(c.chains[t]))
	return nil
}

// SetHookPoint overwrites the singleton slot for contract T. Last writer wins.
func SetHookPoint[T any](c *Configuration, h T) error {
	if any(h) == nil {
		return ErrNilHookPoint
	}
	t := contractOf[T]()
	if err := c.lock(t); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.singletons[t] = h
	slog.Debug("hook point set", "contract", t.String())
	return nil
}

// ChainPrevious builds a decorator over the current singleton for contract T.
// factory receives the previous handler (the zero value of T when none is
// registered) and its result becomes the new singleton. The previous link is
// handed over at construction, so decorators hold it in an immutable field.
func ChainPrevious[T any](c *Configuration, factory func(next T) T) error {
	t := contractOf[T]()
	if err := c.lock(t); err != nil {
		return err
	}
	defer c.mu.Unlock()
	var prev T
	if s, ok := c.singletons[t]; ok {
		prev = s.(T)
	}
	next := factory(prev)
	if any(next) == nil {
		return ErrNilHookPoint
	}
	c.singletons[t] = next
	slog.Debug("hook point chained", "contract", t.String())
	return nil
}

// CutoffPrevious discards every registration for contract T and installs h as
// the sole handler.
func CutoffPrevious[T any](c *Configuration, h T) error {
	if any(h) == nil {
		return ErrNilHookPoint
	}
	t := contractOf[T]()
	if err := c.lock(t); err != nil {
		return err
	}
	defer c.mu.Unlock()
	delete(c.chains, t)
	c.singletons[t] = h
	slog.Debug("hook point cut off", "contract", t.String())
	return nil
}

// GetHookPoint returns the singleton for contract T. ok is false if none is
// registered; this is never an error.
func GetHookPoint[T any](c *Configuration) (T, bool) {
	defer c.rlock()()
	s, ok := c.singletons[contractOf[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return s.(T), true
}

// GetHookPoints returns a copy of the multi-cast list for contract T in
// registration order. Unregistered contracts yield an empty slice.
func GetHookPoints[T any](c *Configuration) []T {
	defer c.rlock()()
	chain := c.chains[contractOf[T]()]
	out := make([]T, len(chain))
	for i, h := range chain {
		out[i] = h.(T)
	}
	return out
}

// Ordered returns every registration for contract T walked in the given
// order. The singleton, if present, is the innermost link: first in Original
// order and last in Reverse order.
func Ordered[T any](c *Configuration, order Order) []T {
	chain := GetHookPoints[T](c)
	if s, ok := GetHookPoint[T](c); ok {
		chain = append([]T{s}, chain...)
	}
	if order == Reverse {
		slices.Reverse(chain)
	}
	return chain
}

// ContractInfo describes the registrations held for one contract.
type ContractInfo struct {
	Contract  string `json:"contract"`
	Singleton bool   `json:"singleton"`
	MultiCast int    `json:"multi_cast"`
}

// Contracts lists every contract with at least one registration, sorted by name.
func (c *Configuration) Contracts() []ContractInfo {
	defer c.rlock()()
	set := c.contractSet()
	out := make([]ContractInfo, 0, len(set))
	for t := range set {
		_, single := c.singletons[t]
		out = append(out, ContractInfo{
			Contract:  t.String(),
			Singleton: single,
			MultiCast: len(c.chains[t]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contract < out[j].Contract })
	return out
}

func (c *Configuration) contractSet() map[reflect.Type]struct{} {
	set := make(map[reflect.Type]struct{}, len(c.singletons)+len(c.chains))
	for t := range c.singletons {
		set[t] = struct{}{}
	}
	for t, chain := range c.chains {
		if len(chain) > 0 {
			set[t] = struct{}{}
		}
	}
	return set
}
