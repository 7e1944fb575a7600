package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/i5heu/ouroboros-nostrdb"
	"github.com/i5heu/ouroboros-nostrdb/internal/config"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DataDir    string
	SkipVerify bool
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "nostrdb",
		Short:         "Embedded nostr event database with a social graph index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data", "", "data directory (default ~/.nostrdb/data)")
	cmd.PersistentFlags().BoolVar(&opts.SkipVerify, "skip-verify", false, "accept events without checking id and signature")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewFollowsCommand(opts))
	cmd.AddCommand(NewFollowersCommand(opts))
	cmd.AddCommand(NewDistanceCommand(opts))
	cmd.AddCommand(NewContactsCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	return cmd
}

func getDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nostrdb", "data"), nil
}

// openDB loads the config, applies the flags and starts a database.
func openDB(ctx context.Context, opts *RootOptions) (*nostrdb.NostrDB, error) {
	file := config.Default()
	if opts.ConfigPath != "" {
		var err error
		file, err = config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case opts.DataDir != "":
		file.DataPath = opts.DataDir
	case opts.ConfigPath == "":
		dir, err := getDataDir()
		if err != nil {
			return nil, err
		}
		file.DataPath = dir
	}
	if opts.SkipVerify {
		file.SkipSignatureVerification = true
	}

	conf, err := nostrdb.ConfigFromFile(file)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	db, err := nostrdb.New(conf)
	if err != nil {
		return nil, err
	}
	if err := db.Start(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// withQuery runs fn inside a snapshot of a freshly opened database.
func withQuery(ctx context.Context, opts *RootOptions, fn func(db *nostrdb.NostrDB, q *nostrdb.Query) error) error {
	db, err := openDB(ctx, opts)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	q, err := db.BeginQuery()
	if err != nil {
		return err
	}
	defer q.End()
	return fn(db, q)
}
