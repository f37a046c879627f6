// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command supervisor is the crash-tolerant parent process: it spawns
// the gateway, restarts it on crash signatures within a bounded
// window, and replays journaled requests once the child is healthy.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/libraxisai/lbrx-gateway/internal/supervisor"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "supervisor",
		Short: "Supervise the lbrx-gateway child process and replay its request journal on restart.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to the supervisor's JSON settings file")

	if err := root.Execute(); err != nil {
		slog.Error("supervisor exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := supervisor.LoadConfig(configPath)
	if err != nil {
		return err
	}

	sup, err := supervisor.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		slog.Info("supervisor: shutdown signal received")
		cancel()
	}()

	if err := sup.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
