package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/crashguard/internal/logging"
)

const (
	// GracePeriod is how long a handled fault waits before exiting so the
	// notice can surface.
	GracePeriod = time.Second

	// ExitCode is the status of a process that exits after a handled fault.
	ExitCode = 1

	// DefaultNotice is shown to the user before exit.
	DefaultNotice = "The application hit an unexpected error and will exit."

	runtimeFatalFile = "runtime-fatal.log"
)

// FaultHandler receives unhandled faults.
type FaultHandler interface {
	HandleFault(t Thread, fault any)
}

// FaultHandlerFunc adapts a function to FaultHandler.
type FaultHandlerFunc func(t Thread, fault any)

// HandleFault calls f(t, fault).
func (f FaultHandlerFunc) HandleFault(t Thread, fault any) {
	f(t, fault)
}

type handlerSlot struct {
	h FaultHandler
}

var defaultHandler atomic.Pointer[handlerSlot]

// DefaultHandler returns the process-wide fault handler, or nil.
func DefaultHandler() FaultHandler {
	if s := defaultHandler.Load(); s != nil {
		return s.h
	}
	return nil
}

// SetDefaultHandler replaces the process-wide fault handler and returns the
// previous one. A nil h removes the handler.
func SetDefaultHandler(h FaultHandler) FaultHandler {
	var next *handlerSlot
	if h != nil {
		next = &handlerSlot{h: h}
	}
	if prev := defaultHandler.Swap(next); prev != nil {
		return prev.h
	}
	return nil
}

// CaptureConfig configures a Registry. It is read-only once installed.
type CaptureConfig struct {
	Dir             string
	ChainToFallback bool
	MaxFiles        int
	IncludeEnv      bool
	MinFreeBytes    uint64
	CollectTimeout  time.Duration
	MonitorInterval time.Duration

	// Limits are flagged in the resource section of a report.
	Limits ResourceLimits

	// RuntimeCrashOutput mirrors unrecoverable runtime fatals (which never
	// reach a FaultHandler) to Dir/runtime-fatal.log.
	RuntimeCrashOutput bool

	App AppInfo

	// Notice is passed to Notifier before exit.
	Notice   string
	Notifier func(message string)

	// Exit terminates the process. Defaults to os.Exit.
	Exit func(code int)

	Logger *slog.Logger
}

// DefaultCaptureDir returns the report directory used when none is set.
func DefaultCaptureDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "crashguard", "crash")
	}
	return filepath.Join(".crashguard", "crash")
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.Dir == "" {
		c.Dir = DefaultCaptureDir()
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	if c.CollectTimeout <= 0 {
		c.CollectTimeout = DefaultCollectTimeout
	}
	if c.Notice == "" {
		c.Notice = DefaultNotice
	}
	if c.Notifier == nil {
		c.Notifier = func(msg string) { fmt.Fprintln(os.Stderr, msg) }
	}
	if c.Exit == nil {
		c.Exit = os.Exit
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop().Logger
	}
	return c
}

// Registry is the process-scoped capture context. It owns the fault handling
// sequence: capture, notice, grace period, exit.
type Registry struct {
	cfg       CaptureConfig
	collector *Collector
	writer    *ReportWriter
	monitor   *ResourceMonitor
	logger    *slog.Logger

	once      sync.Once
	installed atomic.Bool

	mu       sync.Mutex // one fault at a time; guards fallback
	fallback FaultHandler

	sleep func(time.Duration)
}

// NewRegistry creates a registry. A nil collector or writer is replaced by
// the production implementation built from cfg.
func NewRegistry(cfg CaptureConfig, collector *Collector, writer *ReportWriter) *Registry {
	cfg = cfg.withDefaults()

	var monitor *ResourceMonitor
	if collector == nil {
		if cfg.MonitorInterval > 0 {
			monitor = NewResourceMonitor(cfg.MonitorInterval, DefaultMonitorHistory, cfg.Limits, cfg.Logger)
		}
		collector = NewCollector(NewDefaultProvider(cfg.App), monitor, cfg.IncludeEnv, cfg.CollectTimeout, cfg.Logger)
	}
	if writer == nil {
		writer = NewReportWriter(DiskChecker{MinFreeBytes: cfg.MinFreeBytes}, cfg.MaxFiles, cfg.Logger)
	}

	return &Registry{
		cfg:       cfg,
		collector: collector,
		writer:    writer,
		monitor:   monitor,
		logger:    cfg.Logger.With("component", "crash-registry"),
		sleep:     time.Sleep,
	}
}

// Config returns the effective configuration.
func (r *Registry) Config() CaptureConfig {
	return r.cfg
}

// Install makes r the process-wide fault handler. The handler it replaces
// becomes the fallback. Only the first call has an effect, also under
// concurrent calls.
func (r *Registry) Install() {
	r.once.Do(func() {
		r.mu.Lock()
		prev := SetDefaultHandler(r)
		if prev != FaultHandler(r) {
			r.fallback = prev
		}
		r.mu.Unlock()
		r.installed.Store(true)

		debug.SetTraceback("all")
		if r.cfg.RuntimeCrashOutput {
			r.setRuntimeCrashOutput()
		}
		if r.monitor != nil {
			r.monitor.Start(context.Background())
		}
		r.logger.Debug("fault handler installed", "dir", r.cfg.Dir, "fallback", r.fallback != nil)
	})
}

// Installed reports whether Install has run.
func (r *Registry) Installed() bool {
	return r.installed.Load()
}

// Fallback returns the handler that was active before Install.
func (r *Registry) Fallback() FaultHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fallback
}

func (r *Registry) setRuntimeCrashOutput() {
	if err := os.MkdirAll(r.cfg.Dir, 0o750); err != nil {
		r.logger.Warn("runtime crash output disabled", "error", err)
		return
	}
	path := filepath.Join(r.cfg.Dir, runtimeFatalFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		r.logger.Warn("runtime crash output disabled", "error", err)
		return
	}
	// SetCrashOutput duplicates the descriptor.
	defer f.Close()
	if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
		r.logger.Warn("runtime crash output disabled", "error", err)
	}
}

// HandleFault handles a fault raised on t.
//
// A nil fault is delegated to the fallback and nothing is written. Otherwise
// the fault is captured to a report; capture errors are logged and never stop
// the sequence. With ChainToFallback the fallback then sees the fault too.
// Finally the notice is fired without waiting for it, the grace period
// elapses and the process exits with ExitCode.
func (r *Registry) HandleFault(t Thread, fault any) {
	if fault == nil {
		r.logger.Debug("delegating fault", "thread", t.String(), "reason", ErrNullFault)
		if fb := r.Fallback(); fb != nil {
			fb.HandleFault(t, fault)
		}
		return
	}

	stack := debug.Stack()

	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.logger.With("thread", t.String())
	path, err := r.capture(t, fault, stack)
	if err != nil {
		log.Error("crash report not written", "error", err, "fault", fmt.Sprint(fault))
	} else {
		log.Error("crash report written", "path", path, "fault", fmt.Sprint(fault))
	}

	if r.cfg.ChainToFallback && r.fallback != nil {
		r.fallback.HandleFault(t, fault)
	}

	r.notify()
	r.sleep(GracePeriod)
	r.cfg.Exit(ExitCode)
}

// Capture builds and persists the report for fault without exiting.
func (r *Registry) Capture(t Thread, fault any) (string, error) {
	if fault == nil {
		return "", ErrNullFault
	}
	stack := debug.Stack()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capture(t, fault, stack)
}

func (r *Registry) capture(t Thread, fault any, stack []byte) (path string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("capture panicked: %v", p)
		}
	}()

	md := r.collector.Collect(context.Background(), os.Getpid())
	rec := NewFaultRecord(t, fault, stack, md)
	return r.writer.Persist(Format(rec), r.cfg.Dir)
}

// notify fires the notice on its own goroutine. It is never joined and its
// failures are ignored.
func (r *Registry) notify() {
	notifier, msg := r.cfg.Notifier, r.cfg.Notice
	go func() {
		defer func() { _ = recover() }()
		notifier(msg)
	}()
}

// Recover hands a panic of the calling goroutine to the process-wide
// handler. It must be deferred directly:
//
//	defer diagnostics.Recover()
//
// Without an installed handler the panic continues.
func Recover() {
	if r := recover(); r != nil {
		dispatch(CurrentThread(), r)
	}
}

func recoverNamed(name string) {
	if r := recover(); r != nil {
		t := CurrentThread()
		t.Name = name
		dispatch(t, r)
	}
}

func dispatch(t Thread, fault any) {
	h := DefaultHandler()
	if h == nil {
		panic(fault)
	}
	h.HandleFault(t, fault)
}

// Go runs fn on a new goroutine whose panics reach the process-wide handler.
func Go(fn func()) {
	go func() {
		defer Recover()
		fn()
	}()
}

// GoNamed is Go with a thread name recorded in reports.
func GoNamed(name string, fn func()) {
	go func() {
		defer recoverNamed(name)
		fn()
	}()
}

type processInit struct {
	once sync.Once
	reg  *Registry
}

var processRegistry = &processInit{}

// Init builds the production registry from cfg and installs it. Later calls
// return the first registry and ignore their cfg.
func Init(cfg CaptureConfig) *Registry {
	p := processRegistry
	p.once.Do(func() {
		p.reg = NewRegistry(cfg, nil, nil)
		p.reg.Install()
	})
	return p.reg
}
