package daemonctl

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"vigil/internal/ipc"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions are forwarded to the detached daemon as flags.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

func (o LaunchOptions) args() []string {
	args := []string{"daemon"}
	if path := strings.TrimSpace(o.ConfigPath); path != "" {
		args = append(args, "--config", path)
	}
	if level := strings.TrimSpace(o.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	return args
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// launch runs "<exe> daemon" in its own session so it outlives the CLI.
func launch(executable string, opts LaunchOptions) error {
	if strings.TrimSpace(executable) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	proc := exec.Command(executable, opts.args()...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// poll calls check every pollInterval until it reports done or timeout
// passes. The last check error is wrapped into the timeout error.
func poll(timeout time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	var last error
	for {
		done, err := check()
		if done {
			return nil
		}
		last = err
		if !time.Now().Add(pollInterval).Before(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}
	if last == nil {
		last = errors.New("timed out")
	}
	return last
}

func waitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	var client *ipc.Client
	err := poll(timeout, func() (bool, error) {
		c, err := ipc.Dial(socketPath)
		if err != nil {
			return false, err
		}
		client = c
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("daemon failed to start: %w", err)
	}
	return client, nil
}

// EnsureStarted launches the daemon when its socket is absent, then asks it
// to start the pipeline if it is not already running.
func EnsureStarted(socketPath, executable string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	launched := false
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if err := launch(executable, opts); err != nil {
			return StartResult{}, err
		}
		if client, err = waitForClient(socketPath, waitTimeout); err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	if status, err := client.Status(); err == nil && status.Running {
		if launched {
			return StartResult{State: StartStateStarted, Launched: true}, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	result := StartResult{State: StartStateRequested, Launched: launched, Message: strings.TrimSpace(resp.Message)}
	switch {
	case resp.Started:
		result.State = StartStateStarted
	case strings.EqualFold(result.Message, "daemon already running"):
		result.State = StartStateAlreadyRunning
	case result.Message == "":
		result.Message = "Start request sent"
	}
	return result, nil
}
