package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jmerrifield20/wtomax/pkg/client"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// run executes fn against a fresh client with the request timeout applied.
func run(authed bool, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := newClient(authed)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeoutDur)
	defer cancel()
	return fn(ctx, c)
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show supplies, reserve, gate and vesting progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(false, func(ctx context.Context, c *client.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if asJSON() {
				return printJSON(st)
			}

			gate := "open"
			if st.Paused {
				gate = "PAUSED"
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Field", "Value")
			table.Append("Symbol", st.Symbol)
			table.Append("Admin", st.Admin)
			table.Append("Gate", gate)
			table.Append("Total supply", st.TotalSupply.Tokens)
			table.Append("Wrapped supply", st.WrappedSupply.Tokens)
			table.Append("Reserve", st.Reserve.Tokens)
			table.Append("Custodied", st.Custodied.Tokens)
			table.Append("Locked reserve", st.Schedule.LockedReserve.Tokens)
			table.Append("Tranches", fmt.Sprintf("%d / %d", st.Schedule.TranchesReleased, st.Schedule.MaxTranches))
			if !st.Schedule.Complete {
				table.Append("Next tranche", st.Schedule.NextTranche.Tokens)
				table.Append("Next eligible", st.Schedule.NextEligible)
			}
			table.Render()

			fmt.Println("\nGuardians:")
			for i, g := range st.Guardians {
				fmt.Printf("  %d. %s\n", i+1, g)
			}
			return nil
		})
	},
}

// ── balance / guardian / foreign ─────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Show token and native balances of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(false, func(ctx context.Context, c *client.Client) error {
			b, err := c.Balance(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON() {
				return printJSON(b)
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Address", "Tokens", "Wrapped", "Native")
			table.Append(b.Address, b.Balance.Tokens, b.Wrapped.Tokens, b.Native.Tokens)
			table.Render()
			return nil
		})
	},
}

var guardianCmd = &cobra.Command{
	Use:   "guardian <address>",
	Short: "Report whether an address holds a guardian seat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(false, func(ctx context.Context, c *client.Client) error {
			ok, err := c.IsGuardian(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(ok)
			return nil
		})
	},
}

var foreignHolder string

var foreignCmd = &cobra.Command{
	Use:   "foreign <asset>",
	Short: "Show how much of a foreign asset the vault holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(false, func(ctx context.Context, c *client.Client) error {
			f, err := c.Foreign(ctx, args[0], foreignHolder)
			if err != nil {
				return err
			}
			return printForeign(f)
		})
	},
}

func printForeign(f *client.Foreign) error {
	if asJSON() {
		return printJSON(f)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Asset", "Held", "Recovered")
	recovered := "-"
	if f.Recovered != nil {
		recovered = f.Recovered.Tokens
	}
	table.Append(f.Asset, f.Held.Tokens, recovered)
	table.Render()
	return nil
}

// ── wrap / unwrap / withdraw ─────────────────────────────────────────────────

func amountCmd(use, short string, call func(*client.Client, context.Context, string) (*client.AmountResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <amount>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(true, func(ctx context.Context, c *client.Client) error {
				res, err := call(c, ctx, args[0])
				if err != nil {
					return fmt.Errorf("%s: %w", use, err)
				}
				if asJSON() {
					return printJSON(res)
				}
				fmt.Printf("✓ %s %s\n", use, res.Amount.Tokens)
				fmt.Printf("  Balance: %s\n", res.Balance.Tokens)
				fmt.Printf("  Native:  %s\n", res.Native.Tokens)
				fmt.Printf("  Reserve: %s\n", res.Reserve.Tokens)
				return nil
			})
		},
	}
}

var (
	wrapCmd     = amountCmd("wrap", "Deposit native value and mint wrapped tokens", (*client.Client).Wrap)
	unwrapCmd   = amountCmd("unwrap", "Burn wrapped tokens and receive native value", (*client.Client).Unwrap)
	withdrawCmd = amountCmd("withdraw", "Execute an approved reserve withdrawal (admin)", (*client.Client).Withdraw)
)

// ── recover / deposit-foreign ────────────────────────────────────────────────

var recoverCmd = &cobra.Command{
	Use:   "recover <asset> <to> <amount>",
	Short: "Send a foreign asset held by the vault to an address (admin)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(true, func(ctx context.Context, c *client.Client) error {
			f, err := c.Recover(ctx, args[0], args[1], args[2])
			if err != nil {
				return fmt.Errorf("recover: %w", err)
			}
			return printForeign(f)
		})
	},
}

var depositForeignCmd = &cobra.Command{
	Use:   "deposit-foreign <asset> <amount>",
	Short: "Record a foreign asset transfer into the vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(true, func(ctx context.Context, c *client.Client) error {
			f, err := c.DepositForeign(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("deposit-foreign: %w", err)
			}
			return printForeign(f)
		})
	},
}

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerLimit int

var ledgerCmd = &cobra.Command{
	Use:   "ledger [index]",
	Short: "List recent audit entries, or show one by index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(false, func(ctx context.Context, c *client.Client) error {
			if len(args) == 1 {
				idx, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("index must be an integer: %w", err)
				}
				e, err := c.LedgerEntry(ctx, idx)
				if err != nil {
					return err
				}
				return printJSON(e)
			}

			entries, err := c.LedgerEntries(ctx, ledgerLimit)
			if err != nil {
				return err
			}
			if asJSON() {
				return printJSON(entries)
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("#", "Time", "Action", "Subject", "Actor", "Hash")
			for _, e := range entries {
				table.Append(strconv.Itoa(e.Index), e.Timestamp.Format("2006-01-02 15:04:05"),
					e.Action, e.Subject, e.Actor, short(e.Hash))
			}
			table.Render()

			ok, reason, err := c.VerifyLedger(ctx)
			if err != nil {
				return err
			}
			if ok {
				fmt.Println("\nchain verified")
			} else {
				fmt.Printf("\nchain BROKEN: %s\n", reason)
			}
			return nil
		})
	},
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func init() {
	foreignCmd.Flags().StringVar(&foreignHolder, "holder", "", "Also show the amount recovered to this address")
	ledgerCmd.Flags().IntVar(&ledgerLimit, "limit", 20, "Number of entries to list")

	rootCmd.AddCommand(statusCmd, balanceCmd, guardianCmd, foreignCmd,
		wrapCmd, unwrapCmd, withdrawCmd, recoverCmd, depositForeignCmd, ledgerCmd)
}
