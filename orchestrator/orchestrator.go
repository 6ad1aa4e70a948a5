// Package orchestrator drives a single invocation's top-level state
// machine: Loading -> Planning -> Restoring -> Building -> Saving ->
// {Waiting | Exiting}. Grounded on the data-flow pseudocode in spec
// §4.11 and cmd/build.go's client-wiring shape in the teacher (load
// config/build a client/run the operation/report errors to a writer,
// never to a bare panic).
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cargo"
	"github.com/attunehq/hurry/cas"
	"github.com/attunehq/hurry/daemon"
	"github.com/attunehq/hurry/plan"
	"github.com/attunehq/hurry/progress"
	"github.com/attunehq/hurry/restore"
	"github.com/attunehq/hurry/save"
	"github.com/attunehq/hurry/unitindex"
	"github.com/attunehq/hurry/userdirs"
	"github.com/google/uuid"
)

// State names one step of the invocation state machine.
type State string

const (
	StateLoading   State = "loading"
	StatePlanning  State = "planning"
	StateRestoring State = "restoring"
	StateBuilding  State = "building"
	StateSaving    State = "saving"
	StateWaiting   State = "waiting"
	StateExiting   State = "exiting"
)

// Options configures a single invocation.
type Options struct {
	// Argv is the wrapped build tool's own argument vector (everything
	// after "cargo build"), passed through verbatim to both the build-plan
	// dump and the real build invocation.
	Argv         []string
	TargetTriple string
	Profile      hurry.Profile
	Verbose      bool

	// Wait, if set, polls the daemon's GetStatus until the save
	// completes (or a timeout) before returning, instead of handing the
	// save off and exiting immediately.
	Wait bool

	// DaemonAutoStart gates whether save() may self-exec hurryd when no
	// daemon is already running. When false, a missing daemon falls
	// straight through to a synchronous save.
	DaemonAutoStart bool

	Log io.Writer
}

// Orchestrator drives one invocation end to end.
type Orchestrator struct {
	Index *unitindex.Client
	CAS   *cas.Client

	InvocationID string
	State        State
}

// New returns an Orchestrator identified by a fresh invocation id.
func New(index *unitindex.Client, store *cas.Client) *Orchestrator {
	return &Orchestrator{Index: index, CAS: store, InvocationID: uuid.NewString(), State: StateLoading}
}

// Run drives the full invocation. A fatal restore error demotes to "no
// restore happened"; a fatal save error demotes to "no save happened";
// neither aborts the build itself, matching spec §4.11's state machine.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	log := opts.Log
	if log == nil {
		log = os.Stderr
	}

	bar := progress.New(opts.Verbose, progress.WithPrintStepCounter(true))
	bar.SetTotal(5)
	defer bar.Done()

	o.State = StateLoading
	bar.Increment("loading workspace")
	ws, err := cargo.Load(ctx, opts.Argv, opts.TargetTriple, opts.Profile)
	if err != nil {
		return err
	}

	o.State = StatePlanning
	bar.Increment("planning units")
	units, err := o.plan(ctx, ws, opts.Argv)
	if err != nil {
		return err
	}

	o.State = StateRestoring
	bar.Increment("restoring cached units")
	restored, err := o.restore(ctx, ws, units)
	if err != nil {
		fmt.Fprintf(log, "hurry: restore: %v\n", err)
		restored = hurry.NewRestored()
	}

	o.State = StateBuilding
	bar.Increment("building")
	if err := o.build(ctx, opts.Argv); err != nil {
		return err
	}

	refreshed, err := o.plan(ctx, ws, opts.Argv)
	if err != nil {
		// The compiler already ran; a re-plan failure just means the save
		// pass uses the pre-build plan instead of a refreshed one.
		fmt.Fprintf(log, "hurry: re-plan after build: %v\n", err)
		refreshed = units
	}

	o.State = StateSaving
	bar.Increment("saving freshly-built units")
	if err := o.save(ctx, ws, refreshed, restored, opts, log); err != nil {
		fmt.Fprintf(log, "hurry: save: %v\n", err)
	}

	if opts.Wait {
		o.State = StateWaiting
		o.waitForCompletion(ctx, log)
	}

	o.State = StateExiting
	bar.Complete("done")
	return nil
}

func (o *Orchestrator) plan(ctx context.Context, ws *cargo.Workspace, argv []string) ([]hurry.UnitPlan, error) {
	raw, err := ws.BuildPlan(ctx, argv)
	if err != nil {
		return nil, err
	}
	return plan.Plan(ws, raw)
}

func (o *Orchestrator) restore(ctx context.Context, ws *cargo.Workspace, units []hurry.UnitPlan) (*hurry.Restored, error) {
	bar := progress.NewTransferBar("restoring", false)
	defer bar.Close()
	engine := restore.New(o.Index, o.CAS)
	return engine.Run(ctx, ws, units, bar)
}

func (o *Orchestrator) build(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, "cargo", append([]string{"build"}, argv...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

// save hands the refreshed plan off to a running daemon, spawning one if
// none is live, and falls back to a synchronous save.Engine.Run if a
// daemon can't be reached at all (still never fatal to the invocation).
func (o *Orchestrator) save(ctx context.Context, ws *cargo.Workspace, units []hurry.UnitPlan, restored *hurry.Restored, opts Options, log io.Writer) error {
	live, err := daemon.Live()
	if err != nil {
		fmt.Fprintf(log, "hurry: checking daemon liveness: %v\n", err)
	}
	if !live {
		if !opts.DaemonAutoStart {
			engine := save.New(o.Index, o.CAS)
			return engine.Run(ctx, ws, units, restored)
		}
		if err := o.spawnDaemon(); err != nil {
			fmt.Fprintf(log, "hurry: spawn daemon: %v; saving synchronously instead\n", err)
			engine := save.New(o.Index, o.CAS)
			return engine.Run(ctx, ws, units, restored)
		}
	}

	client := daemon.NewClient(userdirs.SocketFile())
	req := daemon.UploadSaveRequest{
		InvocationID: o.InvocationID,
		Workspace: daemon.WorkspaceRequest{
			Root:         ws.Root,
			BuildDir:     ws.BuildDir,
			HostTriple:   ws.Rustc.HostTriple,
			LibcVersion:  ws.Rustc.LibcVersion,
			TargetTriple: ws.TargetTriple,
			Profile:      ws.Profile,
			RegistryRoot: ws.RegistryRoot,
		},
		UnitPlan:    units,
		SkipUnits:   unitHashes(restored.Units),
		SkipObjects: objectKeys(restored.Files),
	}
	return client.UploadSave(ctx, req)
}

// spawnDaemon self-execs the hurryd binary, preferring one alongside the
// running executable and falling back to a PATH lookup, then waits
// briefly for the PID file to appear per spec §4.10.
func (o *Orchestrator) spawnDaemon() error {
	daemonPath := "hurryd"
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "hurryd")
		if _, err := os.Stat(candidate); err == nil {
			daemonPath = candidate
		}
	}

	cmd := exec.Command(daemonPath)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait() // the daemon outlives this process; just reap it

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(userdirs.PIDFile()); err == nil {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for hurryd's pid file to appear")
}

func (o *Orchestrator) waitForCompletion(ctx context.Context, log io.Writer) {
	client := daemon.NewClient(userdirs.SocketFile())
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		status, err := client.GetStatus(ctx, o.InvocationID)
		if err != nil {
			fmt.Fprintf(log, "hurry: polling daemon status: %v\n", err)
			return
		}
		if status.State == daemon.StateComplete {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintf(log, "hurry: timed out waiting for save to complete\n")
}

func unitHashes(m map[hurry.UnitHash]struct{}) []hurry.UnitHash {
	out := make([]hurry.UnitHash, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func objectKeys(m map[hurry.ObjectKey]struct{}) []hurry.ObjectKey {
	out := make([]hurry.ObjectKey, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
