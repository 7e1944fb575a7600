package main

import (
	"errors"
	"fmt"

	"github.com/i5heu/ouroboros-nostrdb"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/i5heu/ouroboros-nostrdb/pkg/validator"
	"github.com/spf13/cobra"
)

func parseIdentities(args []string) ([]types.Identity, error) {
	ids := make([]types.Identity, len(args))
	for i, arg := range args {
		id, err := types.ParseIdentity(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func NewFollowsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "follows <a> <b>",
		Short: "Report whether a follows b",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIdentities(args)
			if err != nil {
				return err
			}
			return withQuery(cmd.Context(), rootOpts, func(db *nostrdb.NostrDB, q *nostrdb.Query) error {
				following, err := db.IsFollowing(q, ids[0], ids[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), following)
				return nil
			})
		},
	}
}

func NewFollowersCommand(rootOpts *RootOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "followers <id>",
		Short: "Print the follower and following counts of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIdentities(args)
			if err != nil {
				return err
			}
			return withQuery(cmd.Context(), rootOpts, func(db *nostrdb.NostrDB, q *nostrdb.Query) error {
				followers, err := db.FollowerCount(q, ids[0])
				if err != nil {
					return err
				}
				following, err := db.FollowingCount(q, ids[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "followers: %d\nfollowing: %d\n", followers, following)
				if !list {
					return nil
				}
				all, err := db.FollowersOf(q, ids[0])
				if err != nil {
					return err
				}
				for _, id := range all {
					line, err := types.Edge{Follower: id, Followee: ids[0]}.MarshalJSON()
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(line))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "also print every follower edge as JSON")
	return cmd
}

func NewDistanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "distance <root> <target>",
		Short: "Print the follow distance from root to target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIdentities(args)
			if err != nil {
				return err
			}
			return withQuery(cmd.Context(), rootOpts, func(db *nostrdb.NostrDB, q *nostrdb.Query) error {
				dist, err := db.FollowDistance(q, ids[0], ids[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dist)
				return nil
			})
		},
	}
}

// NewContactsCommand prints the stored contact list of an identity. Lists are
// only stored when store_raw_events is enabled.
func NewContactsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "contacts <id>",
		Short: "Print the latest applied contact list of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIdentities(args)
			if err != nil {
				return err
			}
			return withQuery(cmd.Context(), rootOpts, func(db *nostrdb.NostrDB, q *nostrdb.Query) error {
				raw, err := db.ContactList(q, ids[0])
				if errors.Is(err, nostrdb.ErrNoContactList) {
					return fmt.Errorf("no contact list stored for %s", ids[0])
				}
				if err != nil {
					return err
				}
				// stored lists were verified on ingest
				ev, err := validator.New(validator.Config{SkipSignatureVerification: true}).Validate(raw)
				if err != nil {
					return fmt.Errorf("stored contact list: %w", err)
				}
				pretty, err := ev.MarshalJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
				return nil
			})
		},
	}
}

func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that forward edges, reverse edges and counters agree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())
			if err := db.Verify(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
