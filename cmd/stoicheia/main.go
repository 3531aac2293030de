// Copyright 2025 The Stoicheia Authors
// This file is part of Stoicheia.
//
// Stoicheia is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Stoicheia is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Stoicheia. If not, see <http://www.gnu.org/licenses/>.

// stoicheia is the operator CLI: inspect quilts, axes, tags and history of
// a store file, and reclaim space by removing tags.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LDSLab/stoicheia/catalog"
)

var (
	dbPath     string
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:          "stoicheia",
		Short:        "Inspect and maintain a stoicheia tensor store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "store file path")
	root.PersistentFlags().StringVar(&configPath, "config", "", "TOML options file")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	root.AddCommand(quiltsCmd(), axesCmd(), tagsCmd(), logCmd(), untagCmd(), statCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openCatalog() (*catalog.Catalog, error) {
	var opts catalog.Options
	if configPath != "" {
		var err error
		if opts, err = catalog.LoadOptions(configPath); err != nil {
			return nil, err
		}
	}
	if dbPath != "" {
		opts.Path = dbPath
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("no store given: pass --db or a --config with a path")
	}
	if verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		opts.Logger = log
	}
	return catalog.Open(opts)
}

func quiltsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quilts",
		Short: "List quilts and their axis tuples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()
			quilts, err := cat.Quilts()
			if err != nil {
				return err
			}
			for _, q := range quilts {
				fmt.Printf("%s\t(%s)\n", q.Name, strings.Join(q.Axes, ", "))
			}
			return nil
		},
	}
}

func axesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "axes <axis>",
		Short: "Print an axis's labels in storage-index order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()
			labels, err := cat.AxisLabels(args[0])
			if err != nil {
				return err
			}
			for ix, label := range labels {
				fmt.Printf("%d\t%d\n", ix, label)
			}
			return nil
		},
	}
}

func tagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags <quilt>",
		Short: "List a quilt's tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()
			tags, err := cat.Tags(args[0])
			if err != nil {
				return err
			}
			for _, t := range tags {
				fmt.Printf("%s\t-> commit %d\n", t.Tag, t.CommID)
			}
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <quilt> [tag]",
		Short: "Print a tag's commit history, newest first",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()
			tag := ""
			if len(args) == 2 {
				tag = args[1]
			}
			history, err := cat.Log(args[0], tag)
			if err != nil {
				return err
			}
			for _, ci := range history {
				fmt.Printf("%d\t%s\n", ci.CommID, ci.Message)
			}
			return nil
		},
	}
}

func untagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "untag <quilt> <tag>",
		Short: "Remove a tag and garbage-collect unreachable commits",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()
			return cat.Untag(args[0], args[1])
		},
	}
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Summarize the store's contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()
			s, err := cat.Stat()
			if err != nil {
				return err
			}
			fmt.Printf("quilts:\t%d\n", s.Quilts)
			fmt.Printf("axes:\t%d (%d labels)\n", s.Axes, s.Labels)
			fmt.Printf("commits:\t%d\n", s.Commits)
			fmt.Printf("patches:\t%d (%s stored)\n", s.Patches,
				datasize.ByteSize(s.StoredBytes).HumanReadable())
			return nil
		},
	}
}
