package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "encore/internal/cli"
	"encore/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "enc",
		Short:        "Encore card economy admin client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newInvCmd(&apiBase),
		newDrawCmd(&apiBase),
		newGiftCmd(&apiBase),
		newLockCmd(&apiBase),
		newTradeCmd(&apiBase),
		newListingsCmd(&apiBase),
		newAttemptCmd(&apiBase),
		newEventCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func loadSession() (cl.Session, error) {
	s, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, err
	}
	return s, nil
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save the API token and acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := promptRequired("API token")
			if err != nil {
				return err
			}
			userID, err := promptRequired("Acting user id")
			if err != nil {
				return err
			}
			username, err := promptOptional("Username (optional)")
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{APIToken: token, UserID: userID, Username: username}); err != nil {
				return err
			}
			printSuccess("Session saved.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newInvCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "inv",
		Short: "Show the acting user's inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			raw, err := newClient(apiBase).Inventory(ctx, session)
			if err != nil {
				return err
			}
			return renderInventory(raw)
		},
	}
}

func newDrawCmd(apiBase *string) *cobra.Command {
	var subject, slot string
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Open a pack",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			raw, err := newClient(apiBase).Draw(ctx, session, subject, slot, uuid.NewString())
			if err != nil {
				return err
			}
			return renderDraw(raw)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "bias the pull toward a subject")
	cmd.Flags().StringVar(&slot, "slot", "pack", "slot table to draw from")
	return cmd
}

func newGiftCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "gift <user-id> <count> <rarity> <name...>",
		Short: "Gift cards to another user",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := loadSession()
			if err != nil {
				return err
			}
			count, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || count <= 0 {
				return fmt.Errorf("count must be a positive number")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			_, err = newClient(apiBase).Gift(ctx, session, args[0], strings.Join(args[3:], " "), strings.ToUpper(args[2]), count)
			if err != nil {
				return err
			}
			printSuccess("Gift sent.")
			return nil
		},
	}
}

func newLockCmd(apiBase *string) *cobra.Command {
	var unlock bool
	cmd := &cobra.Command{
		Use:   "lock <rarity> <name...>",
		Short: "Lock or unlock a card stack",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			_, err = newClient(apiBase).SetCardLock(ctx, session, strings.Join(args[1:], " "), strings.ToUpper(args[0]), !unlock)
			if err != nil {
				return err
			}
			if unlock {
				printSuccess("Stack unlocked.")
			} else {
				printSuccess("Stack locked.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unlock, "unlock", false, "unlock instead of lock")
	return cmd
}

func newTradeCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Negotiate trades",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "start <user-id>",
			Short: "Open a trade with another user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.StartTrade(ctx, s, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "offer <trade-id> <count> <rarity> <name...>",
			Short: "Add cards to your side of a trade",
			Args:  cobra.MinimumNArgs(4),
			RunE: func(cmd *cobra.Command, args []string) error {
				count, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil || count <= 0 {
					return fmt.Errorf("count must be a positive number")
				}
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.AddOffer(ctx, s, args[0], strings.Join(args[3:], " "), strings.ToUpper(args[2]), count)
				})
			},
		},
		&cobra.Command{
			Use:   "accept <trade-id>",
			Short: "Accept the current offers",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.AcceptTrade(ctx, s, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "reject <trade-id>",
			Short: "Reject and close a trade",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.RejectTrade(ctx, s, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "show <trade-id>",
			Short: "Show trade state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.TradeState(ctx, s, args[0])
				})
			},
		},
	)
	return cmd
}

func tradeCall(cmd *cobra.Command, apiBase *string, fn func(context.Context, *cl.Client, cl.Session) (map[string]any, error)) error {
	session, err := loadSession()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	raw, err := fn(ctx, newClient(apiBase), session)
	if err != nil {
		return err
	}
	return renderJSON(raw)
}

func newListingsCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Browse and settle open listings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls",
			Short: "List active listings",
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.Listings(ctx, s)
				})
			},
		},
		&cobra.Command{
			Use:   "settle <listing-id>",
			Short: "Force-settle a listing as the initiator",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.SettleListing(ctx, s, args[0], uuid.NewString())
				})
			},
		},
		&cobra.Command{
			Use:   "cancel <listing-id>",
			Short: "Cancel your own listing",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.CancelListing(ctx, s, args[0])
				})
			},
		},
	)
	return cmd
}

func newAttemptCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempt",
		Short: "Stage performances",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "start <rarity> <name...>",
			Short: "Send a card on stage",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.StartAttempt(ctx, s, strings.Join(args[1:], " "), strings.ToUpper(args[0]))
				})
			},
		},
		&cobra.Command{
			Use:   "ls",
			Short: "List pending performances",
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.PendingAttempts(ctx, s)
				})
			},
		},
		&cobra.Command{
			Use:   "claim",
			Short: "Resolve every ready performance",
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.ClaimAttempts(ctx, s)
				})
			},
		},
	)
	return cmd
}

func newEventCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Manage boss events",
	}

	create := &cobra.Command{
		Use:   "create <subject-id>",
		Short: "Schedule a boss event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spawnIn, _ := cmd.Flags().GetDuration("spawn-in")
			runFor, _ := cmd.Flags().GetDuration("run-for")
			spawnAt := time.Now().Add(spawnIn)
			return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
				return c.CreateEvent(ctx, s, args[0], spawnAt, spawnAt.Add(runFor))
			})
		},
	}
	create.Flags().Duration("spawn-in", 0, "delay before the event goes live")
	create.Flags().Duration("run-for", time.Hour, "how long the event stays live")

	cmd.AddCommand(
		create,
		&cobra.Command{
			Use:   "show <event-id>",
			Short: "Show event state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.Event(ctx, s, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "standings <event-id>",
			Short: "Show contribution standings",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.Standings(ctx, s, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "settle",
			Short: "Settle every ended event now",
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCall(cmd, apiBase, func(ctx context.Context, c *cl.Client, s cl.Session) (map[string]any, error) {
					return c.SettleEvents(ctx, s)
				})
			},
		},
	)
	return cmd
}
