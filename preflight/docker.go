package preflight

import (
	"context"
	"time"

	"github.com/docker/docker/client"
)

// DockerPinger pings the docker daemon configured by the DOCKER_* environment.
type DockerPinger struct {
	Timeout time.Duration
}

func (p DockerPinger) Ping(ctx context.Context) (string, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return "", err
	}
	defer cli.Close()

	ping, err := cli.Ping(ctx)
	if err != nil {
		return "", err
	}
	return ping.APIVersion, nil
}
