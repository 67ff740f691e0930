// Frontline Perception System
// Copyright (C) 2020-2025 TurbineOne LLC
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Command pipctl drives a running pipbridge over its control socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TurbineOne/ffmpeg-pip/pkg/control"
	"github.com/TurbineOne/ffmpeg-pip/pkg/logger"
)

//nolint:gochecknoglobals // Flag storage.
var (
	socketPath string
	timeout    time.Duration
	verbose    bool

	log zerolog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1) //nolint:gocritic // Deferred stop is moot on exit.
	}
}

func rootCmd() *cobra.Command {
	defaults := control.ConfigDefault()

	root := &cobra.Command{
		Use:           "pipctl",
		Short:         "Control a pipbridge daemon",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			c := logger.ConfigDefault()
			c.Console = true
			if verbose {
				c.Level = zerolog.DebugLevel.String()
			}

			log = logger.New(&c)

			return nil
		},
	}

	root.PersistentFlags().StringVarP(&socketPath, "socket", "s", defaults.SocketPath(), "control socket path")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 15*time.Second, "per call timeout")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		connectCmd(),
		simpleCmd("disconnect", "Stop the current source", (*control.Client).Disconnect),
		simpleCmd("start", "Start picture in picture", (*control.Client).Start),
		simpleCmd("stop", "Stop picture in picture", (*control.Client).Stop),
		simpleCmd("toggle", "Start or stop picture in picture", (*control.Client).Toggle),
		stateCmd(),
		watchCmd(),
	)

	return root
}

// withClient dials the socket and runs fn under the call timeout.
func withClient(cmd *cobra.Command, fn func(context.Context, *control.Client) error) error {
	c, err := control.Dial(socketPath)
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck // Don't care about error

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	log.Debug().Str("socket", socketPath).Str("command", cmd.Name()).Msg("calling")

	return fn(ctx, c)
}

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect URL",
		Short: "Play URL into the picture in picture surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				snap, err := c.Connect(ctx, args[0])
				if err != nil {
					return err
				}

				printSnapshot(cmd, snap)

				return nil
			})
		},
	}
}

func simpleCmd(use, short string, call func(*control.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				return call(c, ctx)
			})
		},
	}
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				snap, err := c.State(ctx)
				if err != nil {
					return err
				}

				printSnapshot(cmd, snap)

				return nil
			})
		},
	}
}

func watchCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print every state change until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := control.Dial(socketPath)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck // Don't care about error

			seen := 0

			err = c.Watch(cmd.Context(), func(s control.Snapshot) bool {
				printSnapshot(cmd, s)
				seen++

				return count <= 0 || seen < count
			})
			if cmd.Context().Err() != nil {
				return nil // Interrupted.
			}

			return err
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many states, 0 for no limit")

	return cmd
}

func printSnapshot(cmd *cobra.Command, s control.Snapshot) {
	fmt.Fprintf(cmd.OutOrStdout(),
		"status=%q supported=%t possible=%t active=%t url=%q produced=%d displayed=%d dropped=%d\n",
		s.Status, s.Supported, s.Possible, s.Active, s.URL,
		s.FramesProduced, s.FramesDisplayed, s.FramesDropped)
}
