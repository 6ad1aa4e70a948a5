// Package daemon implements the Daemon (C10): a single long-lived
// per-user background process that performs Save Engine uploads
// asynchronously, reached over a UNIX socket in the user cache
// directory. Grounded on gcp_cache/daemon.rs's accept-loop/PID-lockfile
// shape in the original implementation; the wire transport itself is
// plain net/http served over a net.Listener("unix", ...), since the
// daemon RPC protocol here is HTTP+JSON (spec §6.4), not the teacher's
// rsync-style length-prefixed framing.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cargo"
	"github.com/attunehq/hurry/cas"
	"github.com/attunehq/hurry/save"
	"github.com/attunehq/hurry/unitindex"
	"github.com/attunehq/hurry/userdirs"
	"github.com/gofrs/flock"
)

// UploadSaveRequest is the daemon's one accepted request shape: a save
// pass for one invocation's refreshed unit plan, skipping whatever the
// requesting process's own restore phase already accounted for.
type UploadSaveRequest struct {
	InvocationID string            `json:"invocation_id"`
	Workspace    WorkspaceRequest  `json:"workspace"`
	UnitPlan     []hurry.UnitPlan  `json:"unit_plan"`
	SkipUnits    []hurry.UnitHash  `json:"skip_units"`
	SkipObjects  []hurry.ObjectKey `json:"skip_objects"`
}

// WorkspaceRequest carries just enough of a cargo.Workspace across the
// socket to resolve path roots and target triples; the daemon never
// re-invokes cargo or rustc itself; the requesting process already paid
// that cost when it planned this invocation.
type WorkspaceRequest struct {
	Root         string        `json:"root"`
	BuildDir     string        `json:"build_dir"`
	HostTriple   string        `json:"host_triple"`
	LibcVersion  string        `json:"libc_version"`
	TargetTriple string        `json:"target_triple"`
	Profile      hurry.Profile `json:"profile"`
	RegistryRoot string        `json:"registry_root"`
}

func (r WorkspaceRequest) workspace() *cargo.Workspace {
	return &cargo.Workspace{
		Root:         r.Root,
		BuildDir:     r.BuildDir,
		Rustc:        cargo.RustcMetadata{HostTriple: r.HostTriple, LibcVersion: r.LibcVersion},
		TargetTriple: r.TargetTriple,
		Profile:      r.Profile,
		RegistryRoot: r.RegistryRoot,
	}
}

// Status reports one invocation's save progress.
type Status struct {
	State      string `json:"state"` // "in_progress" or "complete"
	UnitsTotal int    `json:"units_total"`
	UnitsDone  int    `json:"units_done"`
}

const (
	StateInProgress = "in_progress"
	StateComplete   = "complete"
)

// Daemon serves UploadSave/GetStatus over a UNIX socket, running the
// Save Engine in the background for each accepted request.
type Daemon struct {
	Index *unitindex.Client
	CAS   *cas.Client

	mu       sync.Mutex
	statuses map[string]Status
}

// New returns a Daemon ready to Serve.
func New(index *unitindex.Client, store *cas.Client) *Daemon {
	return &Daemon{Index: index, CAS: store, statuses: make(map[string]Status)}
}

// Serve acquires the PID lockfile, binds the UNIX socket, and serves
// until ctx is cancelled. Per spec §4.10's startup procedure: refuse to
// start if another live instance holds the lock (a successful no-op,
// not an error — the caller wanted a daemon running and one already is),
// ignore SIGHUP once running (a hangup from the invoking shell should
// not kill a background daemon), and clear any stale socket left behind
// by an unclean prior exit before binding.
func Serve(ctx context.Context, d *Daemon) error {
	if err := userdirs.Ensure(); err != nil {
		return err
	}

	lock := flock.New(userdirs.PIDFile())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock pid file: %w", err)
	}
	if !locked {
		return nil
	}
	defer lock.Unlock()

	if err := os.WriteFile(userdirs.PIDFile(), []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(userdirs.PIDFile())

	signal.Ignore(syscall.SIGHUP)

	socketPath := userdirs.SocketFile()
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("bind socket: %w", err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	srv := &http.Server{Handler: d.Handler()}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler returns the daemon's HTTP handler, exposed independently of
// Serve so tests can exercise it over a throwaway listener without
// touching the real user cache directory's PID lockfile.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", d.handleUpload)
	mux.HandleFunc("/status", d.handleStatus)
	return mux
}

func (d *Daemon) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req UploadSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	d.statuses[req.InvocationID] = Status{State: StateInProgress, UnitsTotal: len(req.UnitPlan)}
	d.mu.Unlock()

	go d.runSave(req)

	w.WriteHeader(http.StatusAccepted)
}

// runSave performs the Save Engine flow in the background, reporting
// only whole-batch completion: the Save Engine is sequential across
// units internally but doesn't expose a per-unit progress callback, so
// finer-grained counters aren't available without threading one through
// save.Engine.Run.
func (d *Daemon) runSave(req UploadSaveRequest) {
	ws := req.Workspace.workspace()
	restored := hurry.NewRestored()
	for _, h := range req.SkipUnits {
		restored.MarkUnit(h)
	}
	for _, k := range req.SkipObjects {
		restored.MarkFile(k)
	}

	engine := save.New(d.Index, d.CAS)
	done := 0
	if err := engine.Run(context.Background(), ws, req.UnitPlan, restored); err == nil {
		done = len(req.UnitPlan)
	}

	d.mu.Lock()
	d.statuses[req.InvocationID] = Status{State: StateComplete, UnitsTotal: len(req.UnitPlan), UnitsDone: done}
	d.mu.Unlock()
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("invocation_id")
	d.mu.Lock()
	status, ok := d.statuses[id]
	d.mu.Unlock()
	if !ok {
		http.Error(w, "unknown invocation", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Live reports whether a daemon process is already running, per the PID
// lockfile's advisory lock: if TryLock succeeds we just acquired
// exclusive ownership ourselves, so unlock immediately and report false.
func Live() (bool, error) {
	lock := flock.New(userdirs.PIDFile())
	locked, err := lock.TryLock()
	if err != nil {
		return false, err
	}
	if locked {
		lock.Unlock()
		return false, nil
	}
	return true, nil
}
