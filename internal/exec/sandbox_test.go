package exec

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

type fakeDockerClient struct {
	t *testing.T

	imageInspectErr error
	createErr       error
	startErr        error
	copyErr         error
	inspectErr      error

	exitCode int
	stdout   string
	stderr   string
	block    bool

	mu      sync.Mutex
	copied  map[string][]byte
	gotCmd  []string
	killed  []string
	removed bool
	pw      *io.PipeWriter
}

func (f *fakeDockerClient) ImageInspectWithRaw(context.Context, string) (types.ImageInspect, []byte, error) {
	return types.ImageInspect{}, nil, f.imageInspectErr
}

func (f *fakeDockerClient) ImagePull(context.Context, string, types.ImagePullOptions) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeDockerClient) ContainerCreate(context.Context, *container.Config, *container.HostConfig, *network.NetworkingConfig, *specs.Platform, string) (container.ContainerCreateCreatedBody, error) {
	return container.ContainerCreateCreatedBody{ID: "cid"}, f.createErr
}

func (f *fakeDockerClient) ContainerRemove(context.Context, string, types.ContainerRemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = true
	return nil
}

func (f *fakeDockerClient) ContainerStart(context.Context, string, types.ContainerStartOptions) error {
	return f.startErr
}

func (f *fakeDockerClient) ContainerKill(_ context.Context, _ string, signal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, signal)
	if f.pw != nil {
		_ = f.pw.Close()
		f.pw = nil
	}
	return nil
}

func (f *fakeDockerClient) ContainerExecCreate(_ context.Context, _ string, config types.ExecConfig) (types.IDResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCmd = append([]string(nil), config.Cmd...)
	return types.IDResponse{ID: "exec-1"}, nil
}

func (f *fakeDockerClient) ContainerExecAttach(context.Context, string, types.ExecStartCheck) (types.HijackedResponse, error) {
	if f.block {
		pr, pw := io.Pipe()
		f.mu.Lock()
		f.pw = pw
		f.mu.Unlock()
		return types.HijackedResponse{Conn: &fakeConn{}, Reader: bufio.NewReader(pr)}, nil
	}
	data := muxStreams(f.stdout, f.stderr)
	return types.HijackedResponse{Conn: &fakeConn{}, Reader: bufio.NewReader(bytes.NewReader(data))}, nil
}

func (f *fakeDockerClient) ContainerExecStart(context.Context, string, types.ExecStartCheck) error {
	return nil
}

func (f *fakeDockerClient) ContainerExecInspect(context.Context, string) (types.ContainerExecInspect, error) {
	if f.inspectErr != nil {
		return types.ContainerExecInspect{}, f.inspectErr
	}
	return types.ContainerExecInspect{ExitCode: f.exitCode}, nil
}

func (f *fakeDockerClient) CopyToContainer(_ context.Context, _ string, _ string, content io.Reader, _ types.CopyToContainerOptions) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.copied == nil {
		f.copied = make(map[string][]byte)
	}
	tr := tar.NewReader(content)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		f.copied[hdr.Name] = data
	}
}

type fakeConn struct{ closed bool }

func (c *fakeConn) Read([]byte) (int, error)         { return 0, io.EOF }
func (c *fakeConn) Write(p []byte) (int, error)      { return len(p), nil }
func (c *fakeConn) Close() error                     { c.closed = true; return nil }
func (c *fakeConn) LocalAddr() net.Addr              { return fakeAddr("local") }
func (c *fakeConn) RemoteAddr() net.Addr             { return fakeAddr("remote") }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

type fakeAddr string

func (a fakeAddr) Network() string { return string(a) }
func (a fakeAddr) String() string  { return string(a) }

func muxStreams(stdout, stderr string) []byte {
	var buf bytes.Buffer
	if stdout != "" {
		buf.Write(singleStream(1, stdout))
	}
	if stderr != "" {
		buf.Write(singleStream(2, stderr))
	}
	return buf.Bytes()
}

func singleStream(stream byte, payload string) []byte {
	data := []byte(payload)
	header := make([]byte, 8)
	header[0] = stream
	binary.BigEndian.PutUint32(header[4:], uint32(len(data)))
	return append(header, data...)
}

func withFakeDocker(t *testing.T, fake *fakeDockerClient) {
	t.Helper()
	orig := newDockerClient
	t.Cleanup(func() { newDockerClient = orig })
	newDockerClient = func() (dockerClient, error) { return fake, nil }
}

func TestSandboxRunSuccess(t *testing.T) {
	fake := &fakeDockerClient{t: t, exitCode: 0, stdout: "5\n", stderr: ""}
	withFakeDocker(t, fake)

	sbx, err := NewSandbox("node:20-slim", Limits{WallTime: time.Second})
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}

	var out, errOut bytes.Buffer
	exit, timedOut, err := sbx.Run(context.Background(),
		[]File{{Name: "solution.js", Data: []byte("code")}, {Name: "invoke.json", Data: []byte("{}")}},
		[]string{"node", "host.js"},
		func(p []byte) { out.Write(p) },
		func(p []byte) { errOut.Write(p) },
	)
	if err != nil || timedOut || exit != 0 {
		t.Fatalf("unexpected run result exit=%d timedOut=%v err=%v", exit, timedOut, err)
	}
	if out.String() != "5\n" || errOut.String() != "" {
		t.Fatalf("unexpected output %q / %q", out.String(), errOut.String())
	}
	if !reflect.DeepEqual(fake.gotCmd, []string{"node", "host.js"}) {
		t.Fatalf("unexpected command: %v", fake.gotCmd)
	}
	if string(fake.copied["workspace/solution.js"]) != "code" {
		t.Fatalf("code file not injected: %#v", fake.copied)
	}
	if _, ok := fake.copied["workspace/invoke.json"]; !ok {
		t.Fatalf("payload file not injected: %#v", fake.copied)
	}
	if !fake.removed {
		t.Fatalf("expected container to be removed")
	}
}

func TestSandboxRunNonZeroExit(t *testing.T) {
	fake := &fakeDockerClient{t: t, exitCode: 1, stderr: "boom"}
	withFakeDocker(t, fake)

	sbx, err := NewSandbox("python:3.11-slim", Limits{WallTime: time.Second})
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	var errOut bytes.Buffer
	exit, timedOut, err := sbx.Run(context.Background(), nil, []string{"python3", "host.py"},
		func([]byte) {}, func(p []byte) { errOut.Write(p) })
	if err != nil || timedOut {
		t.Fatalf("unexpected error: timedOut=%v err=%v", timedOut, err)
	}
	if exit != 1 || errOut.String() != "boom" {
		t.Fatalf("unexpected exit=%d stderr=%q", exit, errOut.String())
	}
}

func TestSandboxRunTimeout(t *testing.T) {
	fake := &fakeDockerClient{t: t, block: true}
	withFakeDocker(t, fake)

	sbx, err := NewSandbox("node:20-slim", Limits{WallTime: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	start := time.Now()
	_, timedOut, err := sbx.Run(context.Background(), nil, []string{"node", "host.js"},
		func([]byte) {}, func([]byte) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !timedOut {
		t.Fatalf("expected timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.killed) == 0 || fake.killed[0] != "SIGKILL" {
		t.Fatalf("expected SIGKILL, got %v", fake.killed)
	}
	if !fake.removed {
		t.Fatalf("expected container to be removed after timeout")
	}
}

func TestSandboxRunCopyFailureKillsContainer(t *testing.T) {
	fake := &fakeDockerClient{t: t, copyErr: errors.New("copy failed")}
	withFakeDocker(t, fake)

	sbx, err := NewSandbox("node:20-slim", Limits{WallTime: time.Second})
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	_, _, err = sbx.Run(context.Background(), []File{{Name: "f", Data: []byte("x")}},
		[]string{"node", "host.js"}, func([]byte) {}, func([]byte) {})
	if err == nil {
		t.Fatalf("expected copy error")
	}
	if len(fake.killed) == 0 {
		t.Fatalf("expected container kill on copy failure")
	}
}

func TestNewSandboxDockerUnavailable(t *testing.T) {
	orig := newDockerClient
	t.Cleanup(func() { newDockerClient = orig })
	newDockerClient = func() (dockerClient, error) {
		return nil, client.ErrorConnectionFailed("unix:///var/run/docker.sock")
	}
	if _, err := NewSandbox("node:20-slim", Limits{}); !errors.Is(err, ErrDockerUnavailable) {
		t.Fatalf("expected ErrDockerUnavailable, got %v", err)
	}
}

func TestTranslateDockerErr(t *testing.T) {
	if translateDockerErr(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
	err := client.ErrorConnectionFailed("unix:///var/run/docker.sock")
	if !errors.Is(translateDockerErr(err), ErrDockerUnavailable) {
		t.Fatalf("expected ErrDockerUnavailable")
	}
	someErr := errors.New("boom")
	if translateDockerErr(someErr) != someErr {
		t.Fatalf("expected passthrough error")
	}
}

func TestLimitsDefaults(t *testing.T) {
	l := Limits{}.withDefaults()
	if l.WallTime != 5*time.Second || l.MemoryB != 256*1024*1024 || l.NanoCPUs != 1_000_000_000 {
		t.Fatalf("unexpected defaults: %+v", l)
	}
	l = Limits{WallTime: time.Second, MemoryB: 1, NanoCPUs: 2}.withDefaults()
	if l.WallTime != time.Second || l.MemoryB != 1 || l.NanoCPUs != 2 {
		t.Fatalf("explicit limits overwritten: %+v", l)
	}
}

func TestWriterFunc(t *testing.T) {
	var got []byte
	w := writerFunc(func(p []byte) { got = append(got, p...) })
	if n, err := w.Write([]byte("hello")); err != nil || n != 5 {
		t.Fatalf("unexpected write result n=%d err=%v", n, err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected callback to capture bytes, got %q", got)
	}
}
