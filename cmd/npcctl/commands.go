package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/oggyb/npc-swipe/internal/activity"
	"github.com/oggyb/npc-swipe/internal/app"
	"github.com/oggyb/npc-swipe/internal/auth"
	"github.com/oggyb/npc-swipe/internal/cache"
	"github.com/oggyb/npc-swipe/internal/catalog"
	"github.com/oggyb/npc-swipe/internal/config"
	"github.com/oggyb/npc-swipe/internal/db"
	"github.com/oggyb/npc-swipe/internal/logger"
	"github.com/oggyb/npc-swipe/internal/service/swipe"
)

// env is built lazily so commands that need no database (hash-token) stay usable offline.
type env struct {
	cfg *config.Config
	out io.Writer
}

func newRootCmd() *cobra.Command {
	e := &env{out: os.Stdout}

	root := &cobra.Command{
		Use:           "npcctl",
		Short:         "Operator tools for the NPC swipe service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			e.cfg = config.New()
			logger.InitFromConfig(e.cfg)
			e.out = cmd.OutOrStdout()
		},
	}

	root.AddCommand(
		importCmd(e),
		seedCmd(e),
		resetUserCmd(e),
		removeProfileCmd(e),
		likesCmd(e),
		hashTokenCmd(e),
	)
	return root
}

// service wires a swipe service the same way the server does, minus the
// network front ends. Redis is optional here: counters are skipped when it is down.
func (e *env) service(cmd *cobra.Command) (*swipe.Service, func(), error) {
	database, err := db.NewDB(e.cfg)
	if err != nil {
		return nil, nil, err
	}

	var rc *cache.RedisCache
	if r := cache.NewRedisCache(e.cfg); r.Ping(cmd.Context()) == nil {
		rc = r
	} else {
		logger.Warn("redis unavailable, approval counters will not be invalidated", "addr", e.cfg.Redis.Addr)
		_ = r.Close()
	}

	appCtx := app.New(e.cfg, database, rc, logger.L())
	closers := []func(){}
	if rc != nil {
		closers = append(closers, func() { _ = rc.Close() })
	}
	if l, err := activity.OpenFile(e.cfg.Activity.Path); err == nil {
		appCtx.Activity = l
		closers = append(closers, func() { _ = l.Close() })
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return swipe.NewService(appCtx), cleanup, nil
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func importCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load NPC profiles from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.NewDB(e.cfg)
			if err != nil {
				return err
			}
			report, err := catalog.New(database).ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, s := range report.Skipped {
				fmt.Fprintf(e.out, "skipped #%d %q: %s\n", s.Index, s.Name, s.Reason)
			}
			fmt.Fprintf(e.out, "imported %d profiles, skipped %d\n", report.Imported, len(report.Skipped))
			return nil
		},
	}
}

func seedCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Wipe everything and load the demo profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := db.NewDB(e.cfg)
			if err != nil {
				return err
			}
			if err := db.SeedTestData(database); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "seeding completed")
			return nil
		},
	}
}

func resetUserCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-user <user-id>",
		Short: "Delete a player's decisions, matches and seen marks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := e.service(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := svc.ResetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.printJSON(report)
		},
	}
}

func removeProfileCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-profile <profile-id>",
		Short: "Delete a profile and every ledger row that mentions it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := e.service(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := svc.RemoveProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.printJSON(report)
		},
	}
}

func likesCmd(e *env) *cobra.Command {
	var (
		userID string
		token  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "likes",
		Short: "List approve and super decisions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cleanup, err := e.service(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var page *string
			if token != "" {
				page = &token
			}
			likes, next, err := svc.ListLikes(cmd.Context(), userID, page, limit)
			if err != nil {
				return err
			}
			return e.printJSON(map[string]any{"likes": likes, "next_page_token": next})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only this player's likes")
	cmd.Flags().StringVar(&token, "page-token", "", "continue from a previous page")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	return cmd
}

func hashTokenCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the OPERATOR_TOKEN_HASH value for a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			hash, err := auth.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, hash)
			return nil
		},
	}
}
