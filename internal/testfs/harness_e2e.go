//go:build e2e

package testfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/docker/docker/api/types/container"
)

const (
	baseImage = "alpine:3.21"

	binaryName       = "dupehound"
	helperBinaryName = "testfs-helper"
	binaryPath       = "/tmp/" + binaryName
	helperBinaryPath = "/tmp/" + helperBinaryName

	// BinDirEnv names the directory holding the prebuilt linux binaries.
	BinDirEnv = "DUPEHOUND_E2E_BINDIR"
)

// Harness runs dupehound in a Docker container where every volume is a tmpfs
// mount with its own device ID.
//
//	h := testfs.New(t, given)
//	h.RunDupehound("dupes", "--delete-method", "hardlink", "/vol1", "/vol2")
//	h.Assert(then)
type Harness struct {
	t          *testing.T
	ctx        context.Context
	given      FileTree
	container  *Container
	lastResult *RunResult
}

// New starts the container, mounts the binaries from $DUPEHOUND_E2E_BINDIR
// and sows given inside it. The container is removed on test cleanup.
func New(t *testing.T, given FileTree) *Harness {
	t.Helper()

	h := &Harness{t: t, ctx: context.Background(), given: given}

	cfg, hostCfg, err := h.containerConfig()
	if err != nil {
		t.Fatalf("failed to build container config: %v", err)
	}
	c, err := NewContainer(h.ctx, cfg, hostCfg)
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	h.container = c
	t.Cleanup(h.Cleanup)

	if err := h.sow(); err != nil {
		t.Fatalf("failed to setup files: %v", err)
	}
	return h
}

// RunDupehound runs the binary with args; progress output is disabled.
// The result is kept for Assert.
func (h *Harness) RunDupehound(args ...string) *RunResult {
	h.t.Helper()

	cmd := append([]string{binaryPath}, args...)
	if len(args) > 0 && args[0] != "config" && args[0] != "version" {
		cmd = slices.Insert(cmd, 2, "--progress=false")
	}
	res, err := h.container.Run(h.ctx, cmd, nil)
	if err != nil {
		h.t.Fatalf("failed to run dupehound: %v", err)
	}
	h.lastResult = res
	return res
}

// Assert checks the last exit code and every volume of expected.
func (h *Harness) Assert(expected FileTree) {
	h.t.Helper()

	if h.lastResult == nil {
		h.t.Fatal("Assert called before RunDupehound")
	}
	if h.lastResult.ExitCode != expected.ExitCode {
		h.t.Errorf("exit code: got %d, want %d\nstdout: %s\nstderr: %s",
			h.lastResult.ExitCode, expected.ExitCode, h.lastResult.Stdout, h.lastResult.Stderr)
	}

	for _, vol := range expected.Volumes {
		actual, err := h.reap([]string{vol.MountPoint})
		if err != nil {
			h.t.Fatalf("reap %s: %v", vol.MountPoint, err)
		}
		AssertVolume(h.t, vol, actual.Volumes[0])
	}
}

// Cleanup stops the container.
func (h *Harness) Cleanup() {
	if h.container != nil {
		_ = h.container.Close(h.ctx)
		h.container = nil
	}
}

func (h *Harness) containerConfig() (*container.Config, *container.HostConfig, error) {
	binDir := os.Getenv(BinDirEnv)
	if binDir == "" {
		return nil, nil, errors.New(BinDirEnv + " not set")
	}

	// Parents are mounted before children.
	mounts := make([]string, 0, len(h.given.Volumes))
	for _, v := range h.given.Volumes {
		mounts = append(mounts, v.MountPoint)
	}
	slices.Sort(mounts)
	tmpfs := make(map[string]string, len(mounts))
	for _, m := range mounts {
		tmpfs[m] = "size=100m"
	}

	cfg := &container.Config{
		Image: baseImage,
		Cmd:   []string{"sleep", "infinity"},
		Env:   []string{"DUPEHOUND_CACHE_PATH=/tmp/cache", "DUPEHOUND_CONFIG_PATH=/tmp/config"},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{
			fmt.Sprintf("%s:%s:ro", filepath.Join(binDir, binaryName), binaryPath),
			fmt.Sprintf("%s:%s:ro", filepath.Join(binDir, helperBinaryName), helperBinaryPath),
		},
		Tmpfs:      tmpfs,
		AutoRemove: true,
	}
	return cfg, hostCfg, nil
}

func (h *Harness) sow() error {
	spec, err := json.Marshal(h.given)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	res, err := h.container.Run(h.ctx, []string{helperBinaryPath, "sow"}, spec)
	if err != nil {
		return fmt.Errorf("run sow: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sow failed (exit %d): %s%s", res.ExitCode, res.Stdout, res.Stderr)
	}
	return nil
}

func (h *Harness) reap(paths []string) (*ReapResult, error) {
	res, err := h.container.Run(h.ctx, append([]string{helperBinaryPath, "reap"}, paths...), nil)
	if err != nil {
		return nil, fmt.Errorf("run reap: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("reap failed (exit %d): %s%s", res.ExitCode, res.Stdout, res.Stderr)
	}
	var result ReapResult
	if err := json.Unmarshal([]byte(res.Stdout), &result); err != nil {
		return nil, fmt.Errorf("parse reap output: %w", err)
	}
	return &result, nil
}
