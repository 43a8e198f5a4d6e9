// Package texcache keeps terrain texture tiles within a memory budget.
// Resources are addressed by handles; unlocked resources are disposed in
// priority order when the budget is exceeded and recreated on the next Lock.
package texcache

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/falcon-terrain/internal/logger"
)

var cacheLog = logger.Named("texcache")

var (
	ErrUnknownHandle         = errors.New("unknown texture handle")
	ErrNotLocked             = errors.New("resource is not locked")
	ErrResourceLocked        = errors.New("resource is locked")
	ErrResourceExceedsBudget = errors.New("resource alone exceeds the texture budget")
	ErrHandlesExhausted      = errors.New("texture handles exhausted")
)

// Handle identifies a resource in a Cache. Zero is never a valid handle.
type Handle uint32

// MaxHandle is the first handle issued; handles count down from it.
const MaxHandle Handle = ^Handle(0)

// Resource is anything the cache can dispose and later rebuild.
type Resource interface {
	// Size is the resident size in bytes.
	Size() int64
	// Priority orders eviction: lower values go first.
	Priority() int
	Disposed() bool
	// Recreate restores a disposed resource.
	Recreate() error
	// Dispose frees resident memory, keeping what Recreate needs.
	Dispose()
}

// Stats describes the cache state.
type Stats struct {
	CurrentBytes    int64
	BudgetBytes     int64
	Resources       int
	Locked          int
	Evictions       uint64
	Recreations     uint64
	Overallocations uint64 // times eviction could not get back under budget
}

type entry struct {
	handle     Handle
	res        Resource
	locks      int
	lastAccess uint64
	index      int // position in evictionQueue
}

// Cache is safe for concurrent use. Resource methods are called with the
// cache lock held.
type Cache struct {
	mu      sync.Mutex
	budget  int64
	next    Handle
	clock   uint64
	entries map[Handle]*entry
	stats   Stats
}

// New returns a cache with the given budget in bytes.
func New(budgetBytes int64) *Cache {
	return &Cache{
		budget:  budgetBytes,
		next:    MaxHandle,
		entries: make(map[Handle]*entry),
	}
}

// InsertResource registers r unlocked and returns its handle. An over-budget
// cache evicts, possibly disposing r itself; the budget is only enforced
// against locked resources, so Lock reports one that alone exceeds it.
func (c *Cache) InsertResource(r Resource) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next == 0 {
		return 0, ErrHandlesExhausted
	}
	h := c.next
	c.next--

	e := &entry{handle: h, res: r, index: -1}
	c.touch(e)
	c.entries[h] = e

	c.checkForOverallocation()
	return h, nil
}

// GetResource returns the resource for h and marks it accessed.
// The resource may be disposed; use Lock to get a resident one.
func (c *Cache) GetResource(h Handle) (Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[h]
	if !ok {
		return nil, ErrUnknownHandle
	}
	c.touch(e)
	return e.res, nil
}

// Lock pins the resource, recreating it if it was disposed.
// Every successful Lock must be paired with Unlock.
func (c *Cache) Lock(h Handle) (Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[h]
	if !ok {
		return nil, ErrUnknownHandle
	}
	e.locks++
	c.touch(e)

	if e.res.Disposed() {
		if err := e.res.Recreate(); err != nil {
			e.locks--
			return nil, fmt.Errorf("recreating texture %d: %w", h, err)
		}
		c.stats.Recreations++
		c.checkForOverallocation()
	}

	if e.res.Size() > c.budget {
		return e.res, fmt.Errorf("%w: %d > %d bytes", ErrResourceExceedsBudget, e.res.Size(), c.budget)
	}
	return e.res, nil
}

// Unlock releases one Lock.
func (c *Cache) Unlock(h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[h]
	if !ok {
		return ErrUnknownHandle
	}
	if e.locks == 0 {
		return ErrNotLocked
	}
	e.locks--
	return nil
}

// Remove disposes and forgets an unlocked resource. The handle is not reused.
func (c *Cache) Remove(h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[h]
	if !ok {
		return ErrUnknownHandle
	}
	if e.locks > 0 {
		return ErrResourceLocked
	}
	if !e.res.Disposed() {
		e.res.Dispose()
	}
	delete(c.entries, h)
	return nil
}

// IsLocked reports whether h is currently locked.
func (c *Cache) IsLocked(h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h]
	return ok && e.locks > 0
}

// CheckForOverallocation evicts unlocked resources until usage fits the budget.
// Running out of candidates is not an error; it is counted in Stats.
func (c *Cache) CheckForOverallocation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkForOverallocation()
}

// SetBudget changes the budget and evicts if needed.
func (c *Cache) SetBudget(budgetBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budget = budgetBytes
	c.checkForOverallocation()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.BudgetBytes = c.budget
	s.CurrentBytes = c.usage()
	s.Resources = len(c.entries)
	for _, e := range c.entries {
		if e.locks > 0 {
			s.Locked++
		}
	}
	return s
}

func (c *Cache) touch(e *entry) {
	c.clock++
	e.lastAccess = c.clock
}

func (c *Cache) usage() int64 {
	var n int64
	for _, e := range c.entries {
		if !e.res.Disposed() {
			n += e.res.Size()
		}
	}
	return n
}

func (c *Cache) checkForOverallocation() {
	used := c.usage()
	if used <= c.budget {
		return
	}

	q := make(evictionQueue, 0, len(c.entries))
	for _, e := range c.entries {
		if e.locks == 0 && !e.res.Disposed() {
			e.index = len(q)
			q = append(q, e)
		}
	}
	heap.Init(&q)

	for used > c.budget && q.Len() > 0 {
		e := heap.Pop(&q).(*entry)
		size := e.res.Size()
		e.res.Dispose()
		used -= size
		c.stats.Evictions++
		cacheLog.L().Debug("evicted texture",
			zap.Uint32("handle", uint32(e.handle)),
			zap.Int("priority", e.res.Priority()),
			zap.Int64("bytes", size))
	}

	if used > c.budget {
		c.stats.Overallocations++
		cacheLog.L().Warn("texture budget exceeded by locked resources",
			zap.Int64("used", used),
			zap.Int64("budget", c.budget))
	}
}

// evictionQueue orders candidates by priority, then last access, then size.
type evictionQueue []*entry

func (q evictionQueue) Len() int { return len(q) }

func (q evictionQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if pa, pb := a.res.Priority(), b.res.Priority(); pa != pb {
		return pa < pb
	}
	if a.lastAccess != b.lastAccess {
		return a.lastAccess < b.lastAccess
	}
	return a.res.Size() < b.res.Size()
}

func (q evictionQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *evictionQueue) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *evictionQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
