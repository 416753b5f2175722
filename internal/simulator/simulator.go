// simulator.go ties the process and docker backends together behind the
// Simulator type, which the CLI and the supervision loop consume.
package simulator

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openlane-studio/carlactl/internal/config"
	"github.com/openlane-studio/carlactl/internal/model"
	"github.com/openlane-studio/carlactl/internal/port"
)

// rpcReadyTimeout bounds how long `sim start` waits for the simulator's
// RPC port to accept connections. UE4 map loading routinely takes tens
// of seconds on first boot.
const rpcReadyTimeout = 60 * time.Second

// dockerControl is the slice of DockerClient the Simulator needs.
// Declared as an interface so tests can substitute a fake without a
// Docker daemon.
type dockerControl interface {
	Ping(ctx context.Context) error
	FindSimulatorContainer(ctx context.Context) (id, state string, err error)
	RunSimulatorContainer(ctx context.Context, containerName, image string, extraArgs []string) error
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string) error
	KillContainer(ctx context.Context, containerID string) error
	Close() error
}

// Status describes what a status check found, for `sim status` output.
type Status struct {
	// State is the aggregate verdict.
	State model.SimulatorState `json:"state"`

	// PIDs lists matching simulator processes found in the process table.
	PIDs []int32 `json:"pids,omitempty"`

	// ContainerID and ContainerState describe the managed container
	// (docker backend only).
	ContainerID    string `json:"containerId,omitempty"`
	ContainerState string `json:"containerState,omitempty"`

	// RPCListening reports whether the simulator's RPC port accepts
	// connections — the strongest readiness signal we have.
	RPCListening bool `json:"rpcListening"`
}

// Simulator controls the external simulator through the configured backend.
type Simulator struct {
	cfg     config.SimulatorConfig
	host    string
	backend model.SimulatorBackend
	prober  *port.Prober
	log     logrus.FieldLogger

	// newDocker creates the docker control client lazily, so the process
	// backend never touches the Docker socket. Tests override it.
	newDocker func() (dockerControl, error)
}

// New creates a Simulator from configuration. host is the simulator's RPC
// host as seen by the collector (used for the readiness probe).
func New(cfg config.SimulatorConfig, host string, backend model.SimulatorBackend, log logrus.FieldLogger) *Simulator {
	return &Simulator{
		cfg:     cfg,
		host:    host,
		backend: backend,
		prober:  port.NewProber(),
		log:     log,
		newDocker: func() (dockerControl, error) {
			return NewDockerClient()
		},
	}
}

// Check reports the simulator's current state.
func (s *Simulator) Check(ctx context.Context) (*Status, error) {
	status := &Status{State: model.SimStopped}

	pids, err := FindProcesses(ctx, s.cfg.ProcessName)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitSimulatorError,
			"failed to scan the process table", err)
	}
	status.PIDs = pids
	if len(pids) > 0 {
		status.State = model.SimRunning
	}

	if s.backend == model.BackendDocker {
		if err := s.checkContainer(ctx, status); err != nil {
			// The process-table scan already succeeded, so status stays
			// useful while the Docker daemon is down: report the process
			// verdict and warn instead of failing outright.
			s.log.WithError(err).Warn("Docker unreachable, reporting process state only")
		}
	}

	if s.cfg.RPCPort > 0 {
		status.RPCListening = s.prober.IsListening(s.host, s.cfg.RPCPort)
	}

	return status, nil
}

// checkContainer fills in the container half of a Status.
func (s *Simulator) checkContainer(ctx context.Context, status *Status) error {
	cli, err := s.newDocker()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	id, state, err := cli.FindSimulatorContainer(ctx)
	if err != nil {
		return err
	}
	status.ContainerID = id
	status.ContainerState = state
	if state == "running" {
		status.State = model.SimRunning
	}
	return nil
}

// Start launches the simulator through the configured backend. Starting
// an already-running simulator is a no-op, reported via the returned
// Status rather than an error.
func (s *Simulator) Start(ctx context.Context) (*Status, error) {
	status, err := s.Check(ctx)
	if err != nil {
		return nil, err
	}
	if status.State == model.SimRunning {
		s.log.Info("simulator already running")
		return status, nil
	}

	switch s.backend {
	case model.BackendDocker:
		if err := s.startContainer(ctx); err != nil {
			return nil, err
		}
	default:
		if err := s.startProcess(ctx); err != nil {
			return nil, err
		}
	}

	// UE4 opens its RPC port well after the process appears, so wait for
	// actual readiness before reporting. A timeout is not an error — the
	// returned status shows rpcListening=false and the operator decides.
	if s.cfg.RPCPort > 0 {
		if !s.prober.WaitListening(s.host, s.cfg.RPCPort, rpcReadyTimeout, 0) {
			s.log.WithField("port", s.cfg.RPCPort).
				Warn("simulator started but RPC port is not accepting connections yet")
		}
	}

	return s.Check(ctx)
}

// startContainer restarts the managed container if one exists, otherwise
// creates a fresh one from the configured image.
func (s *Simulator) startContainer(ctx context.Context) error {
	cli, err := s.newDocker()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	id, state, err := cli.FindSimulatorContainer(ctx)
	if err != nil {
		return err
	}

	if id != "" && state != "running" {
		s.log.WithField("container", shortID(id)).Info("restarting simulator container")
		return cli.StartContainer(ctx, id)
	}
	if id != "" {
		// Already running; Check said otherwise only because of a race.
		return nil
	}

	s.log.WithField("image", s.cfg.Image).Info("creating simulator container")
	return cli.RunSimulatorContainer(ctx, s.cfg.ContainerName, s.cfg.Image, s.cfg.ExtraArgs)
}

// startProcess spawns the local simulator binary detached: the simulator
// must outlive this carlactl invocation.
func (s *Simulator) startProcess(ctx context.Context) error {
	if s.cfg.Binary == "" {
		return model.NewCLIError(model.ExitSimulatorError,
			"simulator.binary is not configured — cannot start the process backend")
	}

	// Not CommandContext: the simulator is a long-running detached
	// service, not a child scoped to this CLI call.
	// #nosec G204 — binary and args come from carlactl.yaml
	cmd := exec.Command(s.cfg.Binary, s.cfg.ExtraArgs...)
	if err := cmd.Start(); err != nil {
		return model.WrapCLIError(model.ExitSimulatorError,
			fmt.Sprintf("failed to start simulator binary %q", s.cfg.Binary), err)
	}

	s.log.WithField("pid", cmd.Process.Pid).Info("simulator started")

	// Detach: let the OS reparent the process instead of leaving a
	// zombie for a parent that never waits.
	return cmd.Process.Release()
}

// Stop gracefully stops the simulator. The docker backend stops the
// managed container; the process backend force-kills by name (the UE4
// simulator has no graceful remote shutdown).
func (s *Simulator) Stop(ctx context.Context) error {
	if s.backend == model.BackendDocker {
		cli, err := s.newDocker()
		if err != nil {
			return err
		}
		defer func() { _ = cli.Close() }()

		id, state, err := cli.FindSimulatorContainer(ctx)
		if err != nil {
			return err
		}
		if id != "" && state == "running" {
			if err := cli.StopContainer(ctx, id); err != nil {
				return err
			}
			s.log.WithField("container", shortID(id)).Info("simulator container stopped")
		}
		return nil
	}

	killed, err := KillProcesses(ctx, s.cfg.ProcessName)
	if err != nil {
		return model.WrapCLIError(model.ExitSimulatorError,
			"failed to stop simulator processes", err)
	}
	s.log.WithField("killed", killed).Info("simulator processes stopped")
	return nil
}

// Reap force-terminates lingering simulator instances after a collector
// crash. It implements supervise.Reaper.
//
// The sweep is unconditional and best-effort: it always runs the
// process-name kill (finding nothing is success), and with the docker
// backend it additionally SIGKILLs the managed container, since a wedged
// UE4 instance often ignores SIGTERM. Errors are aggregated for the
// caller to log — the supervision loop continues regardless.
func (s *Simulator) Reap(ctx context.Context) error {
	var containerErr error

	if s.backend == model.BackendDocker {
		containerErr = s.reapContainer(ctx)
	}

	killed, err := KillProcesses(ctx, s.cfg.ProcessName)
	if killed > 0 {
		s.log.WithFields(logrus.Fields{
			"process": s.cfg.ProcessName,
			"killed":  killed,
		}).Info("killed lingering simulator processes")
	}
	if err != nil {
		return err
	}
	return containerErr
}

// reapContainer kills the managed simulator container if it is running.
func (s *Simulator) reapContainer(ctx context.Context) error {
	cli, err := s.newDocker()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	id, state, err := cli.FindSimulatorContainer(ctx)
	if err != nil {
		return err
	}
	if id == "" || state != "running" {
		return nil
	}
	if err := cli.KillContainer(ctx, id); err != nil {
		return err
	}
	s.log.WithField("container", shortID(id)).Info("killed simulator container")
	return nil
}

// shortID truncates a container ID to the familiar 12-character form.
// Real IDs are 64 hex characters, but nothing guarantees that.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
