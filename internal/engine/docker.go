package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"stevedore/pkg/logging"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const engineSubsystem = "Engine"

// dockerAPI covers exactly the Docker client methods the engine uses,
// so tests can substitute a fake.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	Close() error
}

// DockerClient implements Runtime using the Docker Engine API
type DockerClient struct {
	api     dockerAPI
	timeout time.Duration
}

// NewDockerClient creates a Docker-backed runtime. The host may be empty, in
// which case the standard environment (DOCKER_HOST and friends) applies.
// Every operation runs under the given per-operation timeout.
func NewDockerClient(host string, timeoutSeconds int) (*DockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &DockerClient{
		api:     api,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// IsNotFound reports whether err means the container or image does not
// exist. Works through error wrapping.
func IsNotFound(err error) bool {
	return errdefs.IsNotFound(err)
}

// Ping reports whether the Docker daemon is reachable
func (c *DockerClient) Ping(ctx context.Context) bool {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if _, err := c.api.Ping(ctx); err != nil {
		logging.Debug(engineSubsystem, "Docker daemon not reachable: %v", err)
		return false
	}
	return true
}

// Inspect looks up a container by name
func (c *DockerClient) Inspect(ctx context.Context, name string) (*Container, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	info, err := c.api.ContainerInspect(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	out := &Container{ID: info.ID}
	if info.ContainerJSONBase != nil {
		out.Name = strings.TrimPrefix(info.Name, "/")
		if info.State != nil {
			out.Running = info.State.Running
			out.Status = info.State.Status
			out.ExitCode = info.State.ExitCode
		}
	}
	if info.Config != nil {
		out.Image = info.Config.Image
	}
	return out, nil
}

// CreateAndStart creates a container and starts it
func (c *DockerClient) CreateAndStart(ctx context.Context, spec ContainerSpec) (string, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	cfg := &container.Config{
		Image:     spec.Image,
		Cmd:       spec.Cmd,
		Env:       env,
		OpenStdin: true,
	}
	hostCfg := &container.HostConfig{
		Binds: spec.Binds,
		Resources: container.Resources{
			Memory:   spec.Memory,
			NanoCPUs: spec.NanoCPUs,
		},
	}

	created, err := c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}
	if err := c.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}

	logging.Debug(engineSubsystem, "Started container %s (%s)", spec.Name, shortID(created.ID))
	return created.ID, nil
}

// Stop gracefully stops a container
func (c *DockerClient) Stop(ctx context.Context, name string, timeoutSeconds int) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	opts := container.StopOptions{}
	if timeoutSeconds > 0 {
		opts.Timeout = &timeoutSeconds
	}
	if err := c.api.ContainerStop(ctx, name, opts); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", name, err)
	}
	return nil
}

// Remove deletes a container
func (c *DockerClient) Remove(ctx context.Context, name string, force bool) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	opts := container.RemoveOptions{Force: force}
	if err := c.api.ContainerRemove(ctx, name, opts); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// Restart restarts a container in place
func (c *DockerClient) Restart(ctx context.Context, name string) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.api.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", name, err)
	}
	return nil
}

// Logs returns the decoded tail of a container's combined output. The
// multiplexed stream is demuxed; raw streams from TTY containers pass
// through unchanged. Invalid UTF-8 is replaced rather than propagated.
func (c *DockerClient) Logs(ctx context.Context, name string, tail int) (string, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}

	rd, err := c.api.ContainerLogs(ctx, name, opts)
	if err != nil {
		return "", fmt.Errorf("failed to read logs for container %s: %w", name, err)
	}
	defer rd.Close()

	raw, err := io.ReadAll(rd)
	if err != nil {
		return "", fmt.Errorf("failed to read logs for container %s: %w", name, err)
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, bytes.NewReader(raw)); err != nil {
		return strings.ToValidUTF8(string(raw), "�"), nil
	}
	return strings.ToValidUTF8(stdout.String()+stderr.String(), "�"), nil
}

// ImageExists reports whether an image is present locally
func (c *DockerClient) ImageExists(ctx context.Context, ref string) bool {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	_, _, err := c.api.ImageInspectWithRaw(ctx, ref)
	return err == nil
}

// PullImage pulls an image and fails on errors reported inside the
// progress stream, not just on transport errors.
func (c *DockerClient) PullImage(ctx context.Context, ref string) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	logging.Info(engineSubsystem, "Pulling image %s", ref)
	rd, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rd.Close()

	// The daemon answers 200 before the pull completes; failures arrive
	// as error messages inside the JSON progress stream.
	if err := jsonmessage.DisplayJSONMessagesStream(rd, io.Discard, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}

	logging.Info(engineSubsystem, "Pulled image %s", ref)
	return nil
}

// BuildImage builds an image from an in-memory Dockerfile
func (c *DockerClient) BuildImage(ctx context.Context, ref string, dockerfile []byte) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	buildCtx, err := tarDockerfile(dockerfile)
	if err != nil {
		return fmt.Errorf("failed to prepare build context for %s: %w", ref, err)
	}

	resp, err := c.api.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{ref},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to build image %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, nil); err != nil {
		return fmt.Errorf("failed to build image %s: %w", ref, err)
	}

	logging.Info(engineSubsystem, "Built image %s", ref)
	return nil
}

// Close releases the underlying Docker connection
func (c *DockerClient) Close() error {
	return c.api.Close()
}

func (c *DockerClient) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// tarDockerfile wraps a Dockerfile in the single-file tar archive the
// build endpoint expects as its context.
func tarDockerfile(content []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: "Dockerfile",
		Mode: 0o644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(content); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
