package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"imgview/internal/collection"
	"imgview/internal/filesystem"
	"imgview/internal/loader"
	"imgview/internal/logging"
	"imgview/internal/memory"
	"imgview/internal/metrics"
	"imgview/internal/middleware"
	"imgview/internal/scanner"
	"imgview/internal/scheduler"
	"imgview/internal/startup"
	"imgview/internal/thumbstore"
	"imgview/internal/vipsthumb"
	"imgview/internal/workers"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"
)

// collectInterval is how often residency and store gauges are sampled.
const collectInterval = 15 * time.Second

func main() {
	startTime := time.Now()

	paths := os.Args[1:]
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: imgview <file|directory>...")
		os.Exit(2)
	}

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	ctx, cancelCause := context.WithCancelCause(context.Background())
	defer cancelCause(nil)
	cancel := func() { cancelCause(errQuit) }

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			cancelCause(fmt.Errorf("signal: %s", sig))
		case <-ctx.Done():
		}
	}()

	// Open thumbnail store
	storeStart := time.Now()
	store, err := thumbstore.Open(ctx, config.StorePath)
	if err != nil {
		startup.LogFatal("Failed to open thumbnail store: %v", err)
	}
	storeStats, err := store.Stats(ctx)
	if err != nil {
		logging.Warn("Failed to read thumbnail store stats: %v", err)
	}
	startup.LogStoreInit(store.Path(), time.Since(storeStart), storeStats)

	metrics.InitializeMetrics()
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	loaderOpts := loader.Options{Store: store}
	if config.VipsEnabled {
		vipsthumb.Startup(config.Workers)
		if fast, err := vipsthumb.New(); err == nil {
			loaderOpts.Fast = fast
		} else {
			logging.Warn("libvips unavailable, thumbnails use the Go decoders: %v", err)
		}
	}

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start(ctx)

	pool := workers.NewPool(config.Workers)
	coll := collection.New()
	v := newViewer(os.Stdout)
	sched := scheduler.New(coll, pool, loader.New(loaderOpts), scheduler.Options{
		Cores:    config.Workers,
		Listener: v,
		Throttle: monitor,
	})
	v.sched = sched

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		sched.Run(ctx)
	}()

	collector := metrics.NewCollector(&statsAdapter{coll: coll, store: store}, collectInterval)
	collector.Start()

	var srv *http.Server
	if config.MetricsEnabled() {
		router := setupRouter(sched, store, monitor)
		startup.LogStatusServer(router, config.MetricsAddr)
		srv = &http.Server{
			Addr:         config.MetricsAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Status server error: %v", err)
			}
		}()
	}

	go scan(ctx, cancelCause, config, paths, sched)

	restore := readKeys(ctx, cancel, sched, v)
	logging.Info("Ready in %v", time.Since(startTime))

	<-ctx.Done()
	restore()

	startup.LogShutdownInitiated(shutdownReason(ctx))

	startup.LogShutdownStep("Stopping scheduler")
	<-runDone
	pool.Close()
	collector.Stop()
	startup.LogShutdownStepComplete("Scheduler stopped")

	if srv != nil {
		startup.LogShutdownStep("Shutting down status server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Status server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Status server stopped")
		}
		shutdownCancel()
	}

	startup.LogShutdownStep("Closing thumbnail store")
	if err := store.Close(); err != nil {
		logging.Warn("Failed to close thumbnail store: %v", err)
	} else {
		startup.LogShutdownStepComplete("Thumbnail store closed")
	}

	vipsthumb.Shutdown()
	startup.LogShutdownComplete()
}

var (
	errQuit     = errors.New("quit")
	errNoImages = errors.New("no viewable images")
)

func shutdownReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil {
		return cause.Error()
	}
	return errQuit.Error()
}

// scan feeds the scheduler and stops the viewer when nothing viewable was
// found.
func scan(ctx context.Context, cancel context.CancelCauseFunc, config *startup.Config, paths []string, sched *scheduler.Scheduler) {
	scanCfg := scanner.DefaultConfig()
	scanCfg.Recursive = config.Recursive

	start := time.Now()
	found, err := scanner.New(scanCfg).Scan(ctx, paths, func(batch []collection.FileInfo) {
		sched.AddBatch(batch)
	})
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		logging.Error("Scan failed: %v", err)
	}

	logging.Info("Found %d images in %v", found, time.Since(start))
	if found == 0 {
		logging.Error("No viewable images in %s", strings.Join(paths, ", "))
		cancel(errNoImages)
	}
}

// viewer prints the status line and reacts to navigation.
type viewer struct {
	mu    sync.Mutex
	out   io.Writer
	eol   string
	sched *scheduler.Scheduler
}

func newViewer(out io.Writer) *viewer {
	return &viewer{out: out, eol: "\n"}
}

// Loaded implements scheduler.Listener.
func (v *viewer) Loaded(kind loader.Kind, e *collection.Entry) {
	if kind != loader.FullLoaded || e != v.sched.CurrentEntry() {
		return
	}
	v.show()
}

// FilenamesLoaded implements scheduler.Listener.
func (v *viewer) FilenamesLoaded(entries []*collection.Entry) {
	logging.Debug("%d files added", len(entries))
	if len(entries) > 0 && entries[0].Index() == 0 {
		v.show()
	}
}

// show prints the current entry's title, or why it has none yet.
func (v *viewer) show() {
	e := v.sched.CurrentEntry()
	if e == nil {
		return
	}
	snap := e.Snapshot()

	var line string
	switch {
	case snap.Full != nil:
		line = v.sched.Title()
	case snap.Err != "":
		line = fmt.Sprintf("%s: %s", snap.Path, snap.Err)
	default:
		line = fmt.Sprintf("%s (loading)", snap.Path)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprint(v.out, line+v.eol)
}

func (v *viewer) setRaw(raw bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw {
		v.eol = "\r\n"
	} else {
		v.eol = "\n"
	}
}

type command int

const (
	cmdNone command = iota
	cmdNext
	cmdPrevious
	cmdQuit
)

// keyCommand maps one read from a raw terminal to a command.
func keyCommand(b []byte) command {
	switch string(b) {
	case "n", " ", "\x1b[C", "\x1b[B", "j", "l":
		return cmdNext
	case "p", "\x7f", "\x1b[D", "\x1b[A", "k", "h":
		return cmdPrevious
	case "q", "\x03", "\x04", "\x1b":
		return cmdQuit
	}
	return cmdNone
}

// lineCommand maps one line of piped input to a command.
func lineCommand(line string) command {
	switch strings.TrimSpace(line) {
	case "n", "next", "":
		return cmdNext
	case "p", "prev", "previous":
		return cmdPrevious
	case "q", "quit":
		return cmdQuit
	}
	return cmdNone
}

func apply(c command, cancel context.CancelFunc, sched *scheduler.Scheduler, v *viewer) {
	switch c {
	case cmdNext:
		sched.Next()
		v.show()
	case cmdPrevious:
		sched.Previous()
		v.show()
	case cmdQuit:
		cancel()
	}
}

// readKeys starts reading navigation input from stdin. The returned
// function restores the terminal.
func readKeys(ctx context.Context, cancel context.CancelFunc, sched *scheduler.Scheduler, v *viewer) func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		go func() {
			s := bufio.NewScanner(os.Stdin)
			for s.Scan() && ctx.Err() == nil {
				apply(lineCommand(s.Text()), cancel, sched, v)
			}
		}()
		return func() {}
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		logging.Warn("Failed to set terminal raw mode, keys need Enter: %v", err)
		go func() {
			s := bufio.NewScanner(os.Stdin)
			for s.Scan() && ctx.Err() == nil {
				apply(lineCommand(s.Text()), cancel, sched, v)
			}
		}()
		return func() {}
	}
	v.setRaw(true)

	go func() {
		buf := make([]byte, 8)
		for ctx.Err() == nil {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				cancel()
				return
			}
			apply(keyCommand(buf[:n]), cancel, sched, v)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.setRaw(false)
			if err := term.Restore(fd, state); err != nil {
				logging.Warn("Failed to restore terminal: %v", err)
			}
		})
	}
}

// statsAdapter feeds the metrics collector.
type statsAdapter struct {
	coll  *collection.Collection
	store *thumbstore.Store
}

// GetStats implements metrics.StatsProvider
func (a *statsAdapter) GetStats() metrics.Stats {
	counts := a.coll.Counts()
	stats := metrics.Stats{
		Entries:       counts.Entries,
		FullResident:  counts.FullResident,
		ThumbResident: counts.ThumbResident,
		Errors:        counts.Errors,
	}
	if a.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s, err := a.store.Stats(ctx); err == nil {
			stats.StoreRows = s.Rows
			stats.StoreBytes = s.Bytes
		}
	}
	return stats
}

// statusResponse is the body of /stats.
type statusResponse struct {
	Build       startup.BuildInfo `json:"build"`
	Current     int               `json:"current"`
	Title       string            `json:"title"`
	Entries     int               `json:"entries"`
	Full        int               `json:"fullResident"`
	Thumbnails  int               `json:"thumbnailsResident"`
	Errors      int               `json:"errors"`
	Idle        bool              `json:"idle"`
	StoreRows   int64             `json:"storeRows"`
	StoreBytes  int64             `json:"storeBytes"`
	HeapBytes   int64             `json:"heapBytes"`
	MemoryLimit int64             `json:"memoryLimit"`
	Throttled   bool              `json:"throttled"`
}

type memoryStats interface {
	GetStats() (current, limit int64, usage float64)
	ShouldThrottle() bool
}

func setupRouter(sched *scheduler.Scheduler, store *thumbstore.Store, mem memoryStats) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(), middleware.Logger(middleware.DefaultLoggingConfig()))

	r.Handle("/metrics", promhttp.Handler()).Methods("GET").Name("metrics")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	}).Methods("GET").Name("healthz")
	r.HandleFunc("/stats", func(w http.ResponseWriter, req *http.Request) {
		counts := sched.Collection().Counts()
		resp := statusResponse{
			Build:      startup.GetBuildInfo(),
			Current:    sched.Current(),
			Title:      sched.Title(),
			Entries:    counts.Entries,
			Full:       counts.FullResident,
			Thumbnails: counts.ThumbResident,
			Errors:     counts.Errors,
			Idle:       sched.Idle(),
		}
		if store != nil {
			if s, err := store.Stats(req.Context()); err == nil {
				resp.StoreRows = s.Rows
				resp.StoreBytes = s.Bytes
			} else {
				logging.Warn("stats: thumbnail store: %v", err)
			}
		}
		if mem != nil {
			resp.HeapBytes, resp.MemoryLimit, _ = mem.GetStats()
			resp.Throttled = mem.ShouldThrottle()
		}
		writeJSON(w, http.StatusOK, resp)
	}).Methods("GET").Name("stats")

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to encode response: %v", err)
	}
}
