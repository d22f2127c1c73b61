package exec

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// Limits bound one sandboxed invocation.
type Limits struct {
	WallTime time.Duration
	MemoryB  int64
	NanoCPUs int64
}

func (l Limits) withDefaults() Limits {
	if l.WallTime <= 0 {
		l.WallTime = 5 * time.Second
	}
	if l.MemoryB == 0 {
		l.MemoryB = 256 * 1024 * 1024
	}
	if l.NanoCPUs == 0 {
		l.NanoCPUs = 1_000_000_000
	}
	return l
}

// File is one file injected into the sandbox workspace before execution.
type File struct {
	Name string
	Data []byte
	Mode int64
}

// dockerClient is the subset of the docker API the sandbox uses. Tests swap
// in a fake through newDockerClient.
type dockerClient interface {
	ImageInspectWithRaw(ctx context.Context, image string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, ref string, options types.ImagePullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.ContainerCreateCreatedBody, error)
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerKill(ctx context.Context, containerID string, signal string) error
	ContainerExecCreate(ctx context.Context, container string, config types.ExecConfig) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error)
	ContainerExecStart(ctx context.Context, execID string, config types.ExecStartCheck) error
	ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options types.CopyToContainerOptions) error
}

var newDockerClient = func() (dockerClient, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// Sandbox executes commands in a throwaway container: no network, read-only
// rootfs, tmpfs workspace, memory and cpu limits. A fresh container is
// created per invocation so no state leaks between test cases.
type Sandbox struct {
	cli    dockerClient
	image  string
	limits Limits
}

func NewSandbox(image string, limits Limits) (*Sandbox, error) {
	cli, err := newDockerClient()
	if err != nil {
		return nil, translateDockerErr(err)
	}
	return &Sandbox{cli: cli, image: image, limits: limits.withDefaults()}, nil
}

// Run injects files into a fresh container, executes cmd, and streams
// demuxed output. The wall-clock limit is enforced with a context deadline;
// on expiry the container is killed and timedOut is reported.
func (s *Sandbox) Run(ctx context.Context, files []File, cmd []string,
	onStdout func([]byte), onStderr func([]byte)) (exit int, timedOut bool, err error) {

	runCtx, cancel := context.WithTimeout(ctx, s.limits.WallTime)
	defer cancel()

	if err := s.ensureImage(ctx); err != nil {
		return -1, false, err
	}

	hostCfg := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Mounts: []mount.Mount{
			{Type: mount.TypeTmpfs, Target: "/tmp"},
			{Type: mount.TypeTmpfs, Target: "/workspace"},
		},
		Resources: container.Resources{
			Memory:   s.limits.MemoryB,
			NanoCPUs: s.limits.NanoCPUs,
		},
		SecurityOpt: []string{"no-new-privileges"},
	}

	conf := &container.Config{
		Image:      s.image,
		Cmd:        []string{"/bin/sh", "-c", "sleep infinity"},
		Tty:        false,
		WorkingDir: "/workspace",
		Env:        []string{"PYTHONDONTWRITEBYTECODE=1", "NODE_OPTIONS=--max-old-space-size=128"},
	}

	create, err := s.cli.ContainerCreate(runCtx, conf, hostCfg, nil, nil, "")
	if err != nil {
		return -1, false, translateDockerErr(err)
	}
	cid := create.ID
	defer func() {
		_ = s.cli.ContainerRemove(context.Background(), cid, types.ContainerRemoveOptions{Force: true})
	}()

	if err := s.cli.ContainerStart(runCtx, cid, types.ContainerStartOptions{}); err != nil {
		return -1, false, translateDockerErr(err)
	}

	if err := s.copyFiles(runCtx, cid, files); err != nil {
		_ = s.cli.ContainerKill(context.Background(), cid, "SIGKILL")
		return -1, false, translateDockerErr(err)
	}

	execID, attach, err := s.execStart(runCtx, cid, cmd)
	if err != nil {
		_ = s.cli.ContainerKill(context.Background(), cid, "SIGKILL")
		return -1, false, translateDockerErr(err)
	}

	copied := make(chan struct{})
	go func() {
		defer close(copied)
		_, _ = stdcopy.StdCopy(writerFunc(onStdout), writerFunc(onStderr), attach.Reader)
	}()

	select {
	case <-runCtx.Done():
		// Killing the container tears down the exec streams, which unblocks
		// the copy goroutine.
		_ = s.cli.ContainerKill(context.Background(), cid, "SIGKILL")
		<-copied
		attach.Close()
		return -1, true, nil
	case <-copied:
		attach.Close()
	}

	inspect, err := s.cli.ContainerExecInspect(context.Background(), execID)
	if err != nil {
		_ = s.cli.ContainerKill(context.Background(), cid, "SIGKILL")
		return -1, false, translateDockerErr(err)
	}
	return inspect.ExitCode, false, nil
}

func (s *Sandbox) ensureImage(ctx context.Context) error {
	_, _, err := s.cli.ImageInspectWithRaw(ctx, s.image)
	if err == nil {
		return nil
	}
	if client.IsErrNotFound(err) {
		pullCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		reader, pullErr := s.cli.ImagePull(pullCtx, s.image, types.ImagePullOptions{})
		if pullErr != nil {
			return translateDockerErr(pullErr)
		}
		defer reader.Close()
		_, _ = io.Copy(io.Discard, reader)
		return nil
	}
	return translateDockerErr(err)
}

func (s *Sandbox) execStart(ctx context.Context, containerID string, cmd []string) (execID string, attach types.HijackedResponse, err error) {
	execResp, err := s.cli.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd:          cmd,
		WorkingDir:   "/workspace",
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	})
	if err != nil {
		return "", types.HijackedResponse{}, err
	}
	attach, err = s.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{Tty: false})
	if err != nil {
		return "", types.HijackedResponse{}, err
	}
	if err := s.cli.ContainerExecStart(ctx, execResp.ID, types.ExecStartCheck{Tty: false}); err != nil {
		attach.Close()
		return "", types.HijackedResponse{}, err
	}
	return execResp.ID, attach, nil
}

// copyFiles packs all workspace files into one tar archive. Untrusted code
// travels through this channel only; it is never spliced into a command line.
func (s *Sandbox) copyFiles(ctx context.Context, cid string, files []File) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		mode := f.Mode
		if mode == 0 {
			mode = 0600
		}
		if err := tw.WriteHeader(&tar.Header{
			Name: "workspace/" + f.Name,
			Mode: mode,
			Size: int64(len(f.Data)),
		}); err != nil {
			return err
		}
		if _, err := tw.Write(f.Data); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return s.cli.CopyToContainer(ctx, cid, "/", &buf, types.CopyToContainerOptions{})
}

func translateDockerErr(err error) error {
	if err == nil {
		return nil
	}
	if client.IsErrConnectionFailed(err) {
		return ErrDockerUnavailable
	}
	return err
}

type writerFunc func([]byte)

func (f writerFunc) Write(p []byte) (int, error) {
	f(p)
	return len(p), nil
}
