package adapters

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"qosflow-go/internal/models"
)

const DefaultCommandTimeout = 30 * time.Second

// SSHExecutor pushes command batches to devices over SSH. One instance is
// shared across devices; credentials come from its config.
type SSHExecutor struct {
	logger *zap.Logger
	config SSHConfig

	// dial is swapped out in tests
	dial func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}

// SSHConfig holds the credentials and timeout used for device sessions.
type SSHConfig struct {
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Port     int           `yaml:"port"`
	Timeout  time.Duration `yaml:"timeout"`
}

func NewSSHExecutor(logger *zap.Logger, config SSHConfig) *SSHExecutor {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultCommandTimeout
	}
	return &SSHExecutor{
		logger: logger,
		config: config,
		dial:   ssh.Dial,
	}
}

// Execute opens a session on the device and runs the command batch as one
// shell input. The context deadline bounds the whole exchange so a stuck
// device cannot stall a multi-device run.
func (e *SSHExecutor) Execute(ctx context.Context, device *models.NetworkDevice, commands []string) (bool, string, error) {
	if len(commands) == 0 {
		return true, "", nil
	}

	timeout := e.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return false, "", ctx.Err()
	}

	clientConfig := &ssh.ClientConfig{
		User:            e.config.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(e.config.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(device.Address, fmt.Sprintf("%d", e.config.Port))
	e.logger.Info("Executing device commands",
		zap.String("device", device.Name),
		zap.String("address", addr),
		zap.Int("commands", len(commands)))

	type execResult struct {
		output string
		err    error
	}
	done := make(chan execResult, 1)
	go func() {
		client, err := e.dial("tcp", addr, clientConfig)
		if err != nil {
			done <- execResult{err: fmt.Errorf("ssh dial failed: %w", err)}
			return
		}
		defer client.Close()

		session, err := client.NewSession()
		if err != nil {
			done <- execResult{err: fmt.Errorf("ssh session failed: %w", err)}
			return
		}
		defer session.Close()

		out, err := session.CombinedOutput(strings.Join(commands, "\n"))
		done <- execResult{output: string(out), err: err}
	}()

	select {
	case <-ctx.Done():
		return false, "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			e.logger.Error("Command execution failed",
				zap.String("device", device.Name),
				zap.Error(res.err))
			return false, res.output, res.err
		}
		return true, res.output, nil
	}
}
