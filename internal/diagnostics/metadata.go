package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/crashguard/internal/logging"
)

// NotSet replaces blank metadata values so every line of a report carries a value.
const NotSet = "not set"

// DefaultCollectTimeout bounds a single metadata collection.
const DefaultCollectTimeout = 2 * time.Second

// Metadata is an ordered string mapping.
//
// Iteration follows insertion order, not key order. Reports are read by people
// and grouped by source, so the order of collection is kept; do not rely on it
// for machine comparison.
type Metadata struct {
	keys   []string
	values map[string]string
}

// NewMetadata returns an empty mapping.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]string)}
}

// Set stores value under key. A new key is appended; an existing key keeps its
// position. Blank values are stored as NotSet.
func (m *Metadata) Set(key, value string) {
	if strings.TrimSpace(value) == "" {
		value = NotSet
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Each calls fn for every entry in insertion order.
func (m *Metadata) Each(fn func(key, value string)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

// Field is a single metadata value read on demand.
type Field struct {
	Key  string
	Read func(ctx context.Context) (string, error)
}

// StaticField returns a Field with a fixed value.
func StaticField(key, value string) Field {
	return Field{Key: key, Read: func(context.Context) (string, error) { return value, nil }}
}

// Provider supplies the metadata fields of the running environment.
// DefaultProvider is the production implementation.
type Provider interface {
	AppFields() []Field
	BuildFields() []Field
	ProcessFields(pid int) []Field
	SystemFields() []Field
}

type entry struct {
	key   string
	value string
}

// Collector gathers metadata at capture time.
type Collector struct {
	provider   Provider
	monitor    *ResourceMonitor
	sanitizer  *logging.Sanitizer
	includeEnv bool
	timeout    time.Duration
	session    string
	logger     *slog.Logger
}

// NewCollector creates a collector. monitor may be nil, in which case no
// resource fields are recorded.
func NewCollector(
	provider Provider,
	monitor *ResourceMonitor,
	includeEnv bool,
	timeout time.Duration,
	logger *slog.Logger,
) *Collector {
	if timeout <= 0 {
		timeout = DefaultCollectTimeout
	}
	if logger == nil {
		logger = logging.NewNop().Logger
	}
	return &Collector{
		provider:   provider,
		monitor:    monitor,
		sanitizer:  logging.NewSanitizer(),
		includeEnv: includeEnv,
		timeout:    timeout,
		session:    uuid.NewString(),
		logger:     logger,
	}
}

// Session returns the identifier recorded for this process.
func (c *Collector) Session() string {
	return c.session
}

// Collect reads every field and returns them in a fixed order: application,
// pid and session, build descriptors, process, resources, system and, when
// enabled, the redacted environment.
//
// Groups are read concurrently. Fields not read when the timeout expires are
// left out; a field that fails is logged and skipped.
func (c *Collector) Collect(ctx context.Context, pid int) *Metadata {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	groups := c.groups(pid)
	results := make([][]entry, len(groups))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, fields := range groups {
		g.Go(func() error {
			c.readGroup(gctx, fields, func(e entry) {
				mu.Lock()
				results[i] = append(results[i], e)
				mu.Unlock()
			})
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("metadata collection timed out", "timeout", c.timeout)
	}

	md := NewMetadata()
	mu.Lock()
	defer mu.Unlock()
	for _, entries := range results {
		for _, e := range entries {
			md.Set(e.key, e.value)
		}
	}
	return md
}

func (c *Collector) groups(pid int) [][]Field {
	fixed := []Field{
		StaticField("pid", strconv.Itoa(pid)),
		StaticField("session", c.session),
	}

	var groups [][]Field
	if c.provider != nil {
		groups = append(groups, c.provider.AppFields())
	}
	groups = append(groups, fixed)
	if c.provider != nil {
		groups = append(groups,
			c.provider.BuildFields(),
			c.provider.ProcessFields(pid),
		)
	}
	if c.monitor != nil {
		groups = append(groups, c.resourceFields())
	}
	if c.provider != nil {
		groups = append(groups, c.provider.SystemFields())
	}
	if c.includeEnv {
		groups = append(groups, c.envFields())
	}
	return groups
}

// readGroup reads fields in order and hands each value to add as soon as it
// is read, so a group cut short by the timeout keeps what it already has.
func (c *Collector) readGroup(ctx context.Context, fields []Field, add func(entry)) {
	for _, f := range fields {
		if ctx.Err() != nil {
			return
		}
		value, err := readField(ctx, f)
		if err != nil {
			c.logger.Debug("skipping metadata field", "error", err)
			continue
		}
		add(entry{key: f.Key, value: value})
	}
}

func readField(ctx context.Context, f Field) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FieldError{Field: f.Key, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if f.Read == nil {
		return "", &FieldError{Field: f.Key, Err: fmt.Errorf("no reader")}
	}
	value, err = f.Read(ctx)
	if err != nil {
		return "", &FieldError{Field: f.Key, Err: err}
	}
	return value, nil
}

func (c *Collector) resourceFields() []Field {
	var once sync.Once
	var sum Summary
	load := func() {
		once.Do(func() {
			sum = c.monitor.Summarize(c.monitor.Sample())
		})
	}
	num := func(key string, get func() string) Field {
		return Field{Key: key, Read: func(context.Context) (string, error) {
			load()
			return get(), nil
		}}
	}

	return []Field{
		num("resource.goroutines", func() string { return strconv.Itoa(sum.Now.Goroutines) }),
		num("resource.heap_alloc_mb", func() string { return formatFloat(sum.Now.HeapMB) }),
		num("resource.stack_in_use_mb", func() string { return formatFloat(sum.Now.StackMB) }),
		num("resource.open_fds", func() string { return positiveInt(sum.Now.OpenFDs) }),
		num("resource.max_fds", func() string { return positiveInt(sum.Now.MaxFDs) }),
		num("resource.num_gc", func() string { return strconv.FormatUint(uint64(sum.Now.NumGC), 10) }),
		num("resource.uptime", func() string { return sum.Now.Uptime.Round(time.Millisecond).String() }),
		num("resource.history", func() string {
			if sum.Samples == 0 {
				return "none"
			}
			return fmt.Sprintf("%d samples over %s", sum.Samples, sum.Window.Round(time.Second))
		}),
		num("resource.goroutines_delta", func() string { return fmt.Sprintf("%+d", sum.GoroutineDelta) }),
		num("resource.heap_delta_mb", func() string { return fmt.Sprintf("%+.1f", sum.HeapDeltaMB) }),
		num("resource.fds_delta", func() string { return fmt.Sprintf("%+d", sum.FDDelta) }),
		num("resource.peak_goroutines", func() string { return strconv.Itoa(sum.PeakGoroutines) }),
		num("resource.peak_heap_mb", func() string { return formatFloat(sum.PeakHeapMB) }),
		num("resource.limits", func() string {
			if len(sum.Exceeded) == 0 {
				return "ok"
			}
			return strings.Join(sum.Exceeded, "; ")
		}),
	}
}

func (c *Collector) envFields() []Field {
	env := os.Environ()
	fields := make([]Field, 0, len(env))
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		fields = append(fields, StaticField("env."+key, c.sanitizer.RedactEnv(key, value)))
	}
	return fields
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func positiveInt(v int) string {
	if v <= 0 {
		return ""
	}
	return strconv.Itoa(v)
}
