package agent

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/events"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// reloadDebounce batches watcher events before reloading a file.
const reloadDebounce = 500 * time.Millisecond

// Registry holds the live set of agent definitions. Reads are lock-free on
// an atomically swapped snapshot; the watcher goroutine is the only writer
// after startup.
type Registry struct {
	loader *Loader
	bus    *events.Bus
	logger *logging.Logger
	dirs   []string

	mu       sync.Mutex
	snapshot atomic.Value // map[string]*registered

	// order preserves registration sequence for deterministic tie-breaks.
	order   map[string]int
	nextSeq int
}

type registered struct {
	def *core.AgentDefinition
	seq int
}

// NewRegistry creates an agent registry over the given directories.
func NewRegistry(loader *Loader, dirs []string, bus *events.Bus, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{
		loader: loader,
		bus:    bus,
		logger: logger,
		dirs:   dirs,
		order:  make(map[string]int),
	}
	r.snapshot.Store(map[string]*registered{})
	return r
}

// Load scans every configured directory, replacing the current set.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*registered)
	for _, dir := range r.dirs {
		defs, err := r.loader.LoadDir(dir)
		if err != nil {
			r.logger.Warn("cannot read agent directory", "dir", dir, "error", err)
			continue
		}
		for _, def := range defs {
			key := strings.ToLower(def.ID)
			if _, dup := next[key]; dup {
				r.logger.Warn("duplicate agent ID, keeping first", "agent", def.ID, "path", def.SourcePath)
				continue
			}
			next[key] = &registered{def: def, seq: r.seqFor(key)}
		}
	}
	r.snapshot.Store(next)
	r.logger.Info("agent registry loaded", "agents", len(next))
	return nil
}

func (r *Registry) seqFor(key string) int {
	if seq, ok := r.order[key]; ok {
		return seq
	}
	r.order[key] = r.nextSeq
	r.nextSeq++
	return r.order[key]
}

func (r *Registry) current() map[string]*registered {
	return r.snapshot.Load().(map[string]*registered)
}

// Get returns an agent by ID, case-insensitive.
func (r *Registry) Get(id string) (*core.AgentDefinition, error) {
	if reg, ok := r.current()[strings.ToLower(id)]; ok {
		return reg.def, nil
	}
	return nil, core.ErrNotFound("agent", id).WithDetail("code", core.CodeAgentNotFound)
}

// List returns all agents sorted by priority, then registration order.
func (r *Registry) List() []*core.AgentDefinition {
	snap := r.current()
	regs := make([]*registered, 0, len(snap))
	for _, reg := range snap {
		regs = append(regs, reg)
	}
	sortRegistered(regs)
	defs := make([]*core.AgentDefinition, len(regs))
	for i, reg := range regs {
		defs[i] = reg.def
	}
	return defs
}

// FindByTags returns agents carrying any of the given tags.
func (r *Registry) FindByTags(tags []string) []*core.AgentDefinition {
	var out []*core.AgentDefinition
	for _, def := range r.List() {
		if def.HasAnyTag(tags) {
			out = append(out, def)
		}
	}
	return out
}

// FindByCapability returns agents advertising a capability, optionally
// filtered by language, in priority order.
func (r *Registry) FindByCapability(c core.Capability, language string) []*core.AgentDefinition {
	var out []*core.AgentDefinition
	for _, def := range r.List() {
		if def.HasCapability(c) && (language == "" || def.SupportsLanguage(language)) {
			out = append(out, def)
		}
	}
	return out
}

// BestForCapability returns the most specialized agent for a capability:
// lowest priority value, registration order breaking ties.
func (r *Registry) BestForCapability(c core.Capability, language string) (*core.AgentDefinition, error) {
	candidates := r.FindByCapability(c, language)
	if len(candidates) == 0 {
		return nil, core.ErrNotFound("agent with capability", string(c)).
			WithDetail("code", core.CodeAgentNotFound)
	}
	return candidates[0], nil
}

func sortRegistered(regs []*registered) {
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].def.Priority != regs[j].def.Priority {
			return regs[i].def.Priority < regs[j].def.Priority
		}
		return regs[i].seq < regs[j].seq
	})
}

// Watch reloads definitions as files change until ctx is cancelled. Each
// change publishes an agent change event.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return core.ErrExecution("WATCH_FAILED", "creating agent watcher").WithCause(err)
	}
	defer watcher.Close()

	for _, dir := range r.dirs {
		if err := watcher.Add(dir); err != nil {
			r.logger.Warn("cannot watch agent directory", "dir", dir, "error", err)
		}
	}

	pendingTimers := make(map[string]*time.Timer)
	var timersMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ".md") {
				continue
			}
			path := event.Name
			timersMu.Lock()
			if t, ok := pendingTimers[path]; ok {
				t.Stop()
			}
			pendingTimers[path] = time.AfterFunc(reloadDebounce, func() {
				timersMu.Lock()
				delete(pendingTimers, path)
				timersMu.Unlock()
				r.handleFileChange(path)
			})
			timersMu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("agent watcher error", "error", err)
		}
	}
}

// handleFileChange reloads or removes a single agent definition.
func (r *Registry) handleFileChange(path string) {
	key := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	def, err := r.loader.LoadFile(path)

	r.mu.Lock()
	old := r.current()
	next := make(map[string]*registered, len(old)+1)
	for k, v := range old {
		next[k] = v
	}

	var eventType string
	switch {
	case err != nil:
		if _, existed := next[key]; !existed {
			r.mu.Unlock()
			r.logger.Warn("ignoring unloadable agent file", "path", path, "error", err)
			return
		}
		// File deleted or broken; either way the agent is gone.
		delete(next, key)
		eventType = events.TypeAgentRemoved
	default:
		if _, existed := next[key]; existed {
			eventType = events.TypeAgentUpdated
		} else {
			eventType = events.TypeAgentAdded
		}
		next[key] = &registered{def: def, seq: r.seqFor(key)}
	}
	r.snapshot.Store(next)
	r.mu.Unlock()

	r.logger.Info("agent registry change", "agent", key, "change", eventType)
	if r.bus != nil {
		r.bus.Publish(events.NewAgentChangeEvent(eventType, key, path))
	}
}
