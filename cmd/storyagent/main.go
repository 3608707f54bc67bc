// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command storyagent is the CLI for the long-form fiction writing agent.
//
// Usage:
//
//	storyagent chat --config config.yaml --project my-novel
//	storyagent generate --project my-novel --chapter 3 --mode FULL
//	storyagent list --project my-novel
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yantianqi1/write-agent/internal/config"
	"github.com/yantianqi1/write-agent/internal/logging"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "storyagent",
		Short: "Conversational long-form fiction writing agent",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML")
	root.AddCommand(newChatCmd(), newGenerateCmd(), newListCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, matching
// hector's cmd/hector shutdown handling style.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

