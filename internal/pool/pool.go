// Package pool implements the distribution pool: a folder of fixed-size
// records loaded into memory and handed out in a cycle.
package pool

import (
	"errors"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/me/tradebot/internal/config"
)

// ErrEmptyPool is returned when dispensing from a pool with no items.
var ErrEmptyPool = errors.New("distribution pool is empty")

// Format decodes and classifies the items stored in the pool folder.
type Format[T any] interface {
	// Size is the exact byte length of a stored item.
	Size() int
	Decode(data []byte) (T, error)
	// IsEmpty reports a placeholder item that must not be loaded.
	IsEmpty(item T) bool
	// Validate returns an error for items that fail legality checks.
	Validate(item T) error
	// Eligible reports whether item may be dispensed anonymously.
	Eligible(item T) bool
	// ClearTracker returns item with its transfer tracker reset.
	ClearTracker(item T) T
}

// Entry is an item together with the key it was registered under.
type Entry[T any] struct {
	Item T
	Key  string
}

// Pool owns the loaded items and the dispense cursor. The zero value is not
// usable; create pools with New.
type Pool[T any] struct {
	format Format[T]
	cfg    config.PoolConfig
	logger *slog.Logger

	mu     sync.RWMutex
	items  []T
	byKey  map[string]Entry[T]
	cursor int
	rng    *rand.Rand
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithRand sets the source used for reshuffling. Tests use a seeded source
// to get a reproducible order.
func WithRand[T any](rng *rand.Rand) Option[T] {
	return func(p *Pool[T]) {
		p.rng = rng
	}
}

// New creates an empty pool. Call LoadFolder or Reload to fill it.
func New[T any](format Format[T], cfg config.PoolConfig, logger *slog.Logger, opts ...Option[T]) *Pool[T] {
	p := &Pool[T]{
		format: format,
		cfg:    cfg,
		logger: logger.With("component", "pool"),
		byKey:  make(map[string]Entry[T]),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return p
}

// Folder returns the configured distribution folder.
func (p *Pool[T]) Folder() string {
	return p.cfg.DistributeFolder
}

// Shuffled reports whether the pool reshuffles when the cursor wraps.
func (p *Pool[T]) Shuffled() bool {
	return p.cfg.DistributeShuffled
}

// Reload rebuilds the pool from the configured folder.
func (p *Pool[T]) Reload() bool {
	return p.LoadFolder(p.cfg.DistributeFolder)
}

// LoadFolder discards the current contents and loads every valid item found
// below path. Files of the wrong size, undecodable, empty or illegal items
// are skipped and logged. It returns true iff at least one item was loaded.
// LoadFolder holds the pool exclusively for its whole duration.
func (p *Pool[T]) LoadFolder(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.items = nil
	p.byKey = make(map[string]Entry[T])
	p.cursor = 0

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		p.logger.Warn("distribution folder not found", "path", path)
		return false
	}

	files := p.filesOfSize(path, int64(p.format.Size()))

	blocked := 0
	for _, file := range files {
		item, ok := p.loadFile(file)
		if !ok {
			continue
		}

		key := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		if _, dup := p.byKey[key]; dup {
			p.logger.Info("SKIPPED: duplicate file name", "file", file, "key", key)
			continue
		}
		if !p.format.Eligible(item) {
			p.logger.Info("item cannot be dispensed anonymously", "file", file)
			blocked++
		}

		p.items = append(p.items, item)
		p.byKey[key] = Entry[T]{Item: item, Key: key}
	}

	if len(p.items) > 0 && blocked == len(p.items) {
		p.logger.Warn("anonymous dispensing will fail; no loaded item is eligible", "items", len(p.items))
	}
	p.logger.Info("distribution pool loaded",
		"path", path,
		"items", len(p.items),
		"record_size", humanize.Bytes(uint64(p.format.Size())),
		"candidates", len(files),
	)
	return len(p.items) > 0
}

// loadFile reads and checks a single candidate file. Caller holds mu.
func (p *Pool[T]) loadFile(file string) (T, bool) {
	var zero T
	data, err := os.ReadFile(file)
	if err != nil {
		p.logger.Info("SKIPPED: unreadable file", "file", file, "error", err)
		return zero, false
	}
	item, err := p.format.Decode(data)
	if err != nil {
		p.logger.Info("SKIPPED: cannot decode file", "file", file, "error", err)
		return zero, false
	}
	if p.format.IsEmpty(item) {
		p.logger.Info("SKIPPED: empty item", "file", file)
		return zero, false
	}
	if err := p.format.Validate(item); err != nil {
		p.logger.Info("SKIPPED: item is not valid", "file", file, "reason", err)
		return zero, false
	}
	if p.cfg.ResetTransferTracker {
		item = p.format.ClearTracker(item)
	}
	return item, true
}

// GetNext returns the item under the cursor and advances it. When the cursor
// wraps and shuffling is enabled, the items are reshuffled before the next
// dispense. It returns ErrEmptyPool when the pool has no items.
func (p *Pool[T]) GetNext() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next()
}

// GetNextEligible draws items until one is eligible for anonymous
// dispensing. After 2×size draws without success it gives up and returns the
// last item drawn.
func (p *Pool[T]) GetNextEligible() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var item T
	if len(p.items) == 0 {
		return item, ErrEmptyPool
	}
	for attempts := 0; attempts < 2*len(p.items); attempts++ {
		item, _ = p.next()
		if p.format.Eligible(item) {
			return item, nil
		}
	}
	p.logger.Warn("no eligible item found; anonymous dispensing will likely fail", "items", len(p.items))
	return item, nil
}

// next dispenses one item. Caller holds mu.
func (p *Pool[T]) next() (T, error) {
	var zero T
	if len(p.items) == 0 {
		return zero, ErrEmptyPool
	}
	item := p.items[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.items)
	if p.cursor == 0 && p.cfg.DistributeShuffled {
		p.rng.Shuffle(len(p.items), func(i, j int) {
			p.items[i], p.items[j] = p.items[j], p.items[i]
		})
	}
	return item, nil
}

// Lookup returns the item registered under key.
func (p *Pool[T]) Lookup(key string) (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.byKey[key]
	return e.Item, ok
}

// Size returns the number of loaded items.
func (p *Pool[T]) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Keys returns the registered keys in sorted order.
func (p *Pool[T]) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, 0, len(p.byKey))
	for k := range p.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// filesOfSize walks root and returns regular files exactly size bytes long,
// in lexical walk order. Symlinks to files count as files; entries that
// cannot be read are logged and skipped. Caller holds mu.
func (p *Pool[T]) filesOfSize(root string, size int64) []string {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			p.logger.Debug("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		var info fs.FileInfo
		switch {
		case d.Type().IsRegular():
			info, err = d.Info()
		case d.Type()&fs.ModeSymlink != 0:
			info, err = os.Stat(path)
		default:
			return nil
		}
		if err != nil {
			p.logger.Debug("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if info.Mode().IsRegular() && info.Size() == size {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		p.logger.Debug("distribution folder walk ended early", "path", root, "error", err)
	}
	return out
}
