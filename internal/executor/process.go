package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/eugenetaranov/hoard/internal/command"
)

// waitDelay bounds how long Wait keeps reading output after the process
// exited or was killed, in case a child still holds the pipes.
const waitDelay = 5 * time.Second

// Exit is the final status of a process.
type Exit struct {
	// Code is the return code, -1 when the process did not exit normally.
	Code int

	Stdout []byte
	Stderr []byte
}

// Process is a started external process.
type Process interface {
	// Poll returns the exit status without blocking. ok is false while the
	// process is still running.
	Poll() (exit *Exit, ok bool)

	// Kill terminates the process. Poll reports the exit afterwards.
	Kill() error
}

// Launcher starts the process for a command.
type Launcher interface {
	Start(ctx context.Context, cmd *command.Command) (Process, error)
}

// ExecLauncher runs commands as local OS processes.
type ExecLauncher struct{}

// Start launches cmd and returns immediately.
func (ExecLauncher) Start(_ context.Context, cmd *command.Command) (Process, error) {
	if len(cmd.Args) == 0 {
		return nil, errors.New("empty command")
	}

	c := exec.Command(cmd.Args[0], cmd.Args[1:]...)
	c.WaitDelay = waitDelay

	p := &execProcess{
		cmd:  c,
		done: make(chan *Exit, 1),
	}
	c.Stdout = &p.stdout
	c.Stderr = &p.stderr

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Args[0], err)
	}

	go p.wait()

	return p, nil
}

// execProcess is an os/exec process whose Wait runs in its own goroutine.
type execProcess struct {
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
	done   chan *Exit
	exit   *Exit
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()

	exit := &Exit{
		Stdout: p.stdout.Bytes(),
		Stderr: p.stderr.Bytes(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exit.Code = exitErr.ExitCode()
		} else {
			exit.Code = -1
			exit.Stderr = append(exit.Stderr, []byte(err.Error()+"\n")...)
		}
	}

	p.done <- exit
}

func (p *execProcess) Poll() (*Exit, bool) {
	if p.exit != nil {
		return p.exit, true
	}
	select {
	case exit := <-p.done:
		p.exit = exit
		return exit, true
	default:
		return nil, false
	}
}

func (p *execProcess) Kill() error {
	if p.exit != nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
