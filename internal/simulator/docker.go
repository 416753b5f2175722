// docker.go implements the docker simulator backend: the simulator runs
// as a single managed container (typically the carlasim/carla image),
// identified by the carlactl management labels.
//
// Container creation shells out to `docker run` — the CLI handles image
// pulling and GPU flags with far less plumbing than the SDK's
// ContainerCreate workflow — while inspection, start, stop, and removal
// go through the Docker Engine SDK with API version negotiation.
package simulator

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/openlane-studio/carlactl/internal/model"
)

// Management labels applied to the simulator container so it can be
// rediscovered across carlactl invocations. Labels are the only state
// carlactl keeps about the container.
const (
	// LabelManagedBy marks containers created by carlactl.
	LabelManagedBy = "carlactl.managed-by"

	// ManagedByValue is the value stored under LabelManagedBy.
	ManagedByValue = "carlactl"

	// LabelRole distinguishes the simulator container from anything else
	// carlactl might manage in the future.
	LabelRole = "carlactl.role"

	// RoleSimulator is the LabelRole value for the simulator container.
	RoleSimulator = "simulator"
)

// defaultPingTimeout is the maximum duration to wait for a Docker daemon
// response during a Ping operation.
const defaultPingTimeout = 5 * time.Second

// DockerClient wraps the Docker Engine SDK client. It handles automatic
// socket detection across platforms and scopes all queries to containers
// carrying the carlactl management labels.
type DockerClient struct {
	inner *client.Client
}

// NewDockerClient creates a Docker client with automatic socket detection.
//
// Detection order:
//  1. DOCKER_HOST environment variable (used as-is when set)
//  2. Platform-specific default socket paths
//
// Returns a model.CLIError with ExitDockerNotRunning if no socket is
// found or the client cannot be created.
func NewDockerClient() (*DockerClient, error) {
	host := os.Getenv("DOCKER_HOST")
	if host == "" {
		detected, err := detectDockerHost()
		if err != nil {
			return nil, model.WrapCLIError(
				model.ExitDockerNotRunning,
				"Docker socket not found",
				err,
			)
		}
		host = detected
	}

	// WithAPIVersionNegotiation keeps us compatible across daemon
	// versions without pinning an API version.
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}

	return &DockerClient{inner: c}, nil
}

// detectDockerHost determines the Docker socket path for the current
// platform by probing known locations. Existence is checked rather than
// connectivity — Ping handles the latter.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
		})

	case "darwin":
		// Docker Desktop may expose the socket at either location
		// depending on version and settings.
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return detectUnixSocket([]string{
				"/var/run/docker.sock",
			})
		}
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
			homeDir + "/.docker/run/docker.sock",
		})

	case "windows":
		// Windows uses a named pipe; os.Stat does not work on pipes,
		// so probe with a brief dial instead.
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err == nil {
			conn.Close()
			return "npipe://" + pipePath, nil
		}
		return "", fmt.Errorf("Docker named pipe not found at %s: %w", pipePath, err)

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket probes Unix socket paths in order and returns the
// Docker host URI for the first one that exists.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf(
		"Docker socket not found at any of: %v — is Docker running?",
		paths,
	)
}

// Ping verifies the Docker daemon is reachable and responsive.
func (c *DockerClient) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker daemon is not responding — is Docker running?",
			err,
		)
	}
	return nil
}

// Close releases the client's resources. Safe to call multiple times.
func (c *DockerClient) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// FindSimulatorContainer looks up the managed simulator container by its
// carlactl labels. Stopped containers are included so `sim start` can
// restart a previously created one.
//
// Returns the container ID and state ("running", "exited", ...), or
// ("", "") when no managed simulator container exists.
func (c *DockerClient) FindSimulatorContainer(ctx context.Context) (id, state string, err error) {
	// Server-side filtering by label is cheaper than listing everything
	// and filtering here.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
		filters.Arg("label", LabelRole+"="+RoleSimulator),
	)

	containers, err := c.inner.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return "", "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}
	if len(containers) == 0 {
		return "", "", nil
	}

	// Single-tenant assumption: there is at most one managed simulator.
	// If stale duplicates exist, the newest one wins (ContainerList
	// returns newest first).
	return containers[0].ID, containers[0].State, nil
}

// RunSimulatorContainer creates and starts the simulator container with
// `docker run -d`, applying the management labels and the configured
// image arguments.
func (c *DockerClient) RunSimulatorContainer(ctx context.Context, containerName, image string, extraArgs []string) error {
	args := make([]string, 0, len(extraArgs)+10)
	args = append(args, "run", "-d",
		"--name", containerName,
		"--label", LabelManagedBy+"="+ManagedByValue,
		"--label", LabelRole+"="+RoleSimulator,
		// The simulator serves its RPC endpoints on the host network;
		// CARLA's documented container invocation uses host networking.
		"--net", "host",
	)
	args = append(args, image)
	args = append(args, extraArgs...)

	// #nosec G204 — args come from carlactl.yaml, not user-typed input
	cmd := exec.CommandContext(ctx, "docker", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return model.WrapCLIError(
			model.ExitSimulatorError,
			fmt.Sprintf("docker run failed for simulator container %q: %s",
				containerName, strings.TrimSpace(string(output))),
			err,
		)
	}
	return nil
}

// StartContainer starts a stopped container by ID via the SDK.
func (c *DockerClient) StartContainer(ctx context.Context, containerID string) error {
	if err := c.inner.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return model.WrapCLIError(
			model.ExitSimulatorError,
			fmt.Sprintf("failed to start container %q", containerID),
			err,
		)
	}
	return nil
}

// StopContainer stops a running container by ID. Docker sends SIGTERM and
// escalates to SIGKILL after the daemon's default timeout.
func (c *DockerClient) StopContainer(ctx context.Context, containerID string) error {
	if err := c.inner.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return model.WrapCLIError(
			model.ExitSimulatorError,
			fmt.Sprintf("failed to stop container %q", containerID),
			err,
		)
	}
	return nil
}

// KillContainer force-kills a running container by ID (SIGKILL, no grace
// period). Used by the post-crash sweep where a wedged simulator may not
// react to SIGTERM at all.
func (c *DockerClient) KillContainer(ctx context.Context, containerID string) error {
	if err := c.inner.ContainerKill(ctx, containerID, "SIGKILL"); err != nil {
		return model.WrapCLIError(
			model.ExitSimulatorError,
			fmt.Sprintf("failed to kill container %q", containerID),
			err,
		)
	}
	return nil
}
