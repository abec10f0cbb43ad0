package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/sandboxd/internal/apperror"
)

// DockerConfig holds the configuration for container-backed workers.
type DockerConfig struct {
	// Image is the Docker image to run the worker in.
	Image string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// KeepSearchPath disables sys.path restoration inside the worker.
	KeepSearchPath bool
}

// DefaultDockerConfig provides sensible defaults for a Python sandbox.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		Image: "python:3.12-alpine",
		// 128 MB memory limit
		MemoryLimit: 128 * 1024 * 1024,
		// 0.5 CPU shares
		CPULimit: 0.5,
	}
}

// DockerLauncher runs each worker in its own locked-down container: no
// network, read-only rootfs, unprivileged user, memory and CPU limits. The
// worker loop talks over the attached stdio streams exactly as a local
// subprocess would.
type DockerLauncher struct {
	cli    *client.Client
	config DockerConfig
	logger *slog.Logger
}

// NewDockerLauncher creates the launcher and makes sure the image is pulled,
// so the first execute does not pay the pull cost.
func NewDockerLauncher(cfg DockerConfig, logger *slog.Logger) (*DockerLauncher, error) {
	if cfg.Image == "" {
		return nil, apperror.InvalidConfiguration("docker launcher requires an image")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperror.InvalidConfiguration(fmt.Sprintf("creating docker client: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		return nil, apperror.InvalidConfiguration(fmt.Sprintf("pulling image %s: %v", cfg.Image, err))
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	io.Copy(io.Discard, reader)
	logger.Info("docker image is ready")

	return &DockerLauncher{cli: cli, config: cfg, logger: logger}, nil
}

// Start creates, attaches to, and starts one worker container. The attach
// happens before start so the READY sentinel cannot be missed.
func (l *DockerLauncher) Start(ctx context.Context) (*Process, error) {
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   l.config.MemoryLimit,
			NanoCPUs: int64(l.config.CPULimit * 1e9),
		},
		// The container exits when the worker loop sees stdin EOF; let the
		// daemon clean it up.
		AutoRemove:     true,
		ReadonlyRootfs: true,
	}

	resp, err := l.cli.ContainerCreate(ctx, &container.Config{
		Image:        l.config.Image,
		Cmd:          []string{"python3", "-u", "-c", WorkerScript},
		Env:          []string{keepSysPathEnv(l.config.KeepSearchPath)},
		User:         "nobody",
		Tty:          false,
		OpenStdin:    true,
		StdinOnce:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}, hostConfig, nil, nil, "")
	if err != nil {
		return nil, apperror.StartupFailed(fmt.Sprintf("ContainerCreate failed: %v", err))
	}

	attach, err := l.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		l.removeContainer(resp.ID)
		return nil, apperror.StartupFailed(fmt.Sprintf("ContainerAttach failed: %v", err))
	}

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		attach.Close()
		l.removeContainer(resp.ID)
		return nil, apperror.StartupFailed(fmt.Sprintf("ContainerStart failed: %v", err))
	}

	// Without a TTY the attach stream multiplexes stdout and stderr; demux
	// into pipes so the process handle sees two ordinary line streams.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(stdoutW, stderrW, attach.Reader)
		stdoutW.CloseWithError(err)
		stderrW.CloseWithError(err)
	}()

	waitCh, errCh := l.cli.ContainerWait(context.Background(), resp.ID, container.WaitConditionNotRunning)

	return &Process{
		ID:     resp.ID,
		Stdin:  &attachStdin{attach: attach},
		Stdout: stdoutR,
		Stderr: stderrR,
		Wait: func() error {
			select {
			case status := <-waitCh:
				if status.StatusCode != 0 {
					return fmt.Errorf("container exited with status %d", status.StatusCode)
				}
				return nil
			case err := <-errCh:
				return err
			}
		},
		Kill: func() error {
			attach.Close()
			l.removeContainer(resp.ID)
			return nil
		},
	}, nil
}

// removeContainer force removes a container by ID.
func (l *DockerLauncher) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = l.cli.ContainerRemove(ctx, id, container.RemoveOptions{
		Force: true,
	})
}

// attachStdin adapts a hijacked attach connection to io.WriteCloser. Close
// half-closes the write side only, which is what tells the worker loop to
// exit while its final output can still be read.
type attachStdin struct {
	attach types.HijackedResponse
}

func (a *attachStdin) Write(p []byte) (int, error) {
	return a.attach.Conn.Write(p)
}

func (a *attachStdin) Close() error {
	return a.attach.CloseWrite()
}
