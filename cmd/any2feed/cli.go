/*
 * Copyright 2023 The any2feed Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/any2feed/any2feed/pkg/config"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	flags := &config.Flags{}
	root := &cobra.Command{
		Use:   applicationName,
		Short: "Atom feeds for sites that do not publish them",
		Long: `any2feed serves Atom feeds and OPML subscription lists built from
danbooru tag searches, public Telegram channels and a signed in MeWe
session.

  any2feed -c any2feed.toml run
  any2feed -vv run -p 8080 --threads 8`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.ConfigPath, "config", "c", "",
		"config file, TOML or YAML (default "+config.DefaultConfigPath+" when present)")
	pf.CountVarP(&flags.Verbosity, "verbose", "v", "log verbosity; -v is info, -vv is debug")
	pf.StringVar(&flags.LogFile, "log-file", "", "log to this file instead of stdout")

	root.AddCommand(newRunCmd(flags), newVersionCmd())
	return root
}

func newRunCmd(flags *config.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the feed server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, flags)
		},
	}
	cmd.Flags().Uint16VarP(&flags.Port, "port", "p", 0, "port to listen on")
	cmd.Flags().Uint8Var(&flags.Threads, "threads", 0, "number of worker threads")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version())
		},
	}
}

func version() string {
	return fmt.Sprintf("%s version: %s, buildInfo: %s %s, goVersion: %s",
		applicationName, applicationVersion,
		applicationBuildTime, applicationGitCommitID,
		runtime.Version(),
	)
}
