package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/momentics/hioload-nio/control"
	"github.com/momentics/hioload-nio/eventloop"
	"github.com/momentics/hioload-nio/internal/demo"
	"github.com/spf13/cobra"
)

var echoTimeout time.Duration

var echoCmd = &cobra.Command{
	Use:   "echo ADDR MESSAGE...",
	Short: "Send a message to an echo server and print the reply",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runEcho,
}

func init() {
	echoCmd.Flags().DurationVar(&echoTimeout, "timeout", 10*time.Second, "overall deadline for the round trip")
}

func runEcho(cmd *cobra.Command, args []string) error {
	base, err := control.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg := applyFlags(base)
	cfg.Name += "-client"
	logger := control.NewLogger(cfg, cmd.ErrOrStderr())

	payload := []byte(strings.Join(args[1:], " "))
	replies := make(chan []byte, 1)
	causes := make(chan error, 1)
	loop, err := eventloop.New(cfg,
		eventloop.WithLogger(logger),
		eventloop.WithClientInitializer(func(s *eventloop.Session) error {
			s.AddHandler(&demo.EchoClient{Payload: payload, Done: replies})
			s.AddHandler(&causeReporter{ch: causes})
			return nil
		}),
	)
	if err != nil {
		return err
	}
	if err := loop.Start(); err != nil {
		return err
	}
	defer func() {
		loop.ShutdownNow()
		<-loop.Done()
	}()

	if err := loop.Connect(args[0], 0); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), echoTimeout)
	defer cancel()
	select {
	case reply := <-replies:
		fmt.Fprintln(cmd.OutOrStdout(), string(reply))
		return nil
	case err := <-causes:
		return fmt.Errorf("echo %s: %w", args[0], err)
	case <-ctx.Done():
		return fmt.Errorf("echo %s: %w", args[0], ctx.Err())
	}
}

// causeReporter hands the first error of a session to the caller.
type causeReporter struct {
	eventloop.HandlerAdapter
	ch chan<- error
}

func (c *causeReporter) OnCause(ctx *eventloop.HandlerContext, cause error) error {
	select {
	case c.ch <- cause:
	default:
	}
	ctx.Close()
	return nil
}
