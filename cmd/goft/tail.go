package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MattCruikshank/goft/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	tailURL      string
	tailUser     string
	tailPassword string
	tailRoom     int64
)

// tailCmd follows a room from the terminal
var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print a room's messages as they arrive",
	Long: `Logs in to a goft server and prints every message posted to a room
until interrupted.

Example:
  goft tail --url http://localhost:8080 --user test --room 1`,
	Args: cobra.NoArgs,
	RunE: runTail,
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	password := tailPassword
	if password == "" {
		password = os.Getenv("GOFT_PASSWORD")
	}

	c, err := client.New(tailURL)
	if err != nil {
		return err
	}
	if err := c.Login(ctx, tailUser, password); err != nil {
		return fmt.Errorf("failed to log in as %s: %w", tailUser, err)
	}

	conn, err := c.Join(ctx, tailRoom)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("joined room", zap.Int64("room", tailRoom), zap.String("url", tailURL))

	out := cmd.OutOrStdout()
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, client.ErrClosed) {
				return nil
			}
			return err
		}

		f, err := client.ParseFragment(data)
		if err != nil {
			logger.Warn("unreadable fragment", zap.Error(err))
			continue
		}
		for _, m := range f.Messages {
			fmt.Fprintf(out, "%s %s: %s\n", m.Time.Local().Format("15:04"), m.Author, m.Text)
		}
		if f.Error != "" {
			fmt.Fprintf(out, "error: %s\n", f.Error)
		}
	}
}
