//go:build e2e

package testfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Container is a started Docker container that runs commands through exec.
type Container struct {
	client *client.Client
	id     string
}

// NewContainer pulls the image if needed, then creates and starts a container.
// The caller must Close it.
func NewContainer(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig) (*Container, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	id, err := startContainer(ctx, cli, cfg, hostCfg)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return &Container{client: cli, id: id}, nil
}

func startContainer(ctx context.Context, cli *client.Client, cfg *container.Config, hostCfg *container.HostConfig) (string, error) {
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("pull image: %w", err)
	}
	_, _ = io.Copy(io.Discard, reader)
	_ = reader.Close()

	resp, err := cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}
	return resp.ID, nil
}

// Run executes cmd in the container, feeding stdin when it is non-nil.
func (c *Container) Run(ctx context.Context, cmd []string, stdin []byte) (*RunResult, error) {
	exec, err := c.client.ContainerExecCreate(ctx, c.id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}

	hijack, err := c.client.ContainerExecAttach(ctx, exec.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	defer hijack.Close()

	if stdin != nil {
		if _, err := hijack.Conn.Write(stdin); err != nil {
			return nil, fmt.Errorf("write stdin: %w", err)
		}
		if err := hijack.CloseWrite(); err != nil {
			return nil, fmt.Errorf("close stdin: %w", err)
		}
	}

	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, hijack.Reader)

	inspect, err := c.client.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return nil, fmt.Errorf("exec inspect: %w", err)
	}
	return &RunResult{ExitCode: inspect.ExitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// Close stops the container; AutoRemove deletes it.
func (c *Container) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	defer c.client.Close()
	return c.client.ContainerStop(ctx, c.id, container.StopOptions{})
}
