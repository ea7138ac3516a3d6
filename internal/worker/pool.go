package worker

import (
	"sync"

	"github.com/panjf2000/ants/v2"
)

const (
	sharedPoolSize  = 100
	defaultPoolSize = 16
)

// Pool runs blocking command bodies off the executor goroutine.
type Pool interface {
	Submit(task func()) error
	Release()
}

type antsPool struct {
	pool *ants.Pool
}

func (p *antsPool) Submit(task func()) error { return p.pool.Submit(task) }

func (p *antsPool) Release() { p.pool.Release() }

// NewPinned creates a dedicated pool of the given size. Sizes below one
// fall back to the default.
func NewPinned(size int) (Pool, error) {
	if size < 1 {
		size = defaultPoolSize
	}

	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &antsPool{pool: pool}, nil
}

var (
	sharedOnce sync.Once
	shared     Pool
)

type sharedPool struct {
	antsPool
}

// Release on the shared pool is a no-op: it is process-wide and owned
// by no single executor.
func (p *sharedPool) Release() {}

// Shared returns the process-wide default pool, created on first use.
func Shared() Pool {
	sharedOnce.Do(func() {
		pool, err := ants.NewPool(sharedPoolSize)
		if err != nil {
			// ants only fails on a non-positive size with no options.
			panic(err)
		}
		shared = &sharedPool{antsPool{pool: pool}}
	})
	return shared
}

// Registry hands out named pinned pools, creating each lazily on first
// request.
type Registry struct {
	mutex sync.Mutex
	pools map[string]Pool
}

func NewRegistry() *Registry {
	return &Registry{
		pools: make(map[string]Pool),
	}
}

// Get returns the pool registered under name, creating it with the
// given size if needed. The size only applies on creation.
func (r *Registry) Get(name string, size int) (Pool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if pool, exists := r.pools[name]; exists {
		return pool, nil
	}

	pool, err := NewPinned(size)
	if err != nil {
		return nil, err
	}
	r.pools[name] = pool
	return pool, nil
}

// Release releases every pool in the registry.
func (r *Registry) Release() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for name, pool := range r.pools {
		pool.Release()
		delete(r.pools, name)
	}
}
