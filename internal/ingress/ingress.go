// Package ingress implements the IPC ingress worker: it reads lines from
// the control FIFO and enqueues parsed commands. It never touches
// registry or loaded-map state directly; it only produces onto the
// command channel.
package ingress

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/huitest/liota/internal/command"
)

// Ingress reads commands from a named pipe and sends them on Commands.
type Ingress struct {
	pipePath string
	log      *slog.Logger
	commands chan<- command.Command
}

// New returns an Ingress bound to pipePath, sending parsed commands onto
// commands. commands is never closed by Ingress.
func New(pipePath string, log *slog.Logger, commands chan<- command.Command) *Ingress {
	if log == nil {
		log = slog.Default()
	}
	return &Ingress{pipePath: pipePath, log: log, commands: commands}
}

// Run opens the pipe, reads lines until the writer side closes (one
// "batch"), and re-opens it, forever, until ctx is cancelled. A failure
// to open the pipe is returned so the caller can decide whether this is
// fatal to the process.
func (in *Ingress) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := in.readBatch(ctx); err != nil {
			return err
		}
	}
}

func (in *Ingress) readBatch(ctx context.Context) error {
	f, err := os.OpenFile(in.pipePath, os.O_RDONLY, os.ModeNamedPipe)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		cmd, err := command.Parse(line)
		if err != nil {
			in.log.Warn("malformed command line discarded", "line", line, "error", err)
			continue
		}

		in.log.Debug("enqueuing command", "op", cmd.Op, "arg", cmd.Arg)
		in.commands <- cmd
	}
	if err := scanner.Err(); err != nil {
		in.log.Error("error reading control pipe", "error", err)
	}
	return nil
}
