package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmerrifield20/wtomax/pkg/client"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func printApproval(r *client.ApprovalResult) error {
	if asJSON() {
		return printJSON(r)
	}
	fmt.Printf("✓ Approved %s (%d/%d)\n", r.Tag, r.Approvals, r.Quorum)
	if r.Approvals >= r.Quorum {
		fmt.Println("  Quorum reached; the request can now be executed")
	}
	return nil
}

var approveCmd = &cobra.Command{
	Use:   "approve <releaseTokens|changeSuperAdmin|pause|unpause>",
	Short: "Vote on a governance action (guardian)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(true, func(ctx context.Context, c *client.Client) error {
			r, err := c.ApproveRequest(ctx, args[0])
			if err != nil {
				return fmt.Errorf("approve: %w", err)
			}
			return printApproval(r)
		})
	},
}

var approveWithdrawalCmd = &cobra.Command{
	Use:   "approve-withdrawal <amount>",
	Short: "Vote on withdrawing an exact amount from the reserve (guardian)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(true, func(ctx context.Context, c *client.Client) error {
			r, err := c.ApproveWithdrawal(ctx, args[0])
			if err != nil {
				return fmt.Errorf("approve-withdrawal: %w", err)
			}
			return printApproval(r)
		})
	},
}

var approveOwnerChangeCmd = &cobra.Command{
	Use:   "approve-owner-change <outgoing> <incoming>",
	Short: "Vote on replacing one guardian with another (guardian)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(true, func(ctx context.Context, c *client.Client) error {
			r, err := c.ApproveOwnerChange(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("approve-owner-change: %w", err)
			}
			return printApproval(r)
		})
	},
}

var (
	approvalsAmount   string
	approvalsOutgoing string
	approvalsIncoming string
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals <tag>",
	Short: "Show who has approved a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(false, func(ctx context.Context, c *client.Client) error {
			a, err := c.Approvals(ctx, client.ApprovalQuery{
				Tag:      args[0],
				Amount:   approvalsAmount,
				Outgoing: approvalsOutgoing,
				Incoming: approvalsIncoming,
			})
			if err != nil {
				return err
			}
			if asJSON() {
				return printJSON(a)
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Request", "Approvals", "Approvers")
			table.Append(args[0], fmt.Sprintf("%d/%d", a.Approvals, a.Quorum), strings.Join(a.Approvers, "\n"))
			table.Render()
			return nil
		})
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release the next vesting tranche to the admin (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(true, func(ctx context.Context, c *client.Client) error {
			r, err := c.Release(ctx)
			if err != nil {
				return fmt.Errorf("release: %w", err)
			}
			if asJSON() {
				return printJSON(r)
			}
			fmt.Printf("✓ Released %s\n", r.Released.Tokens)
			fmt.Printf("  Tranches: %d/%d, locked reserve %s\n",
				r.Schedule.TranchesReleased, r.Schedule.MaxTranches, r.Schedule.LockedReserve.Tokens)
			if !r.Schedule.Complete {
				fmt.Printf("  Next eligible: %s\n", r.Schedule.NextEligible)
			}
			return nil
		})
	},
}

var changeAdminCmd = &cobra.Command{
	Use:   "change-admin <new-admin>",
	Short: "Replace the super administrator (guardian)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(true, func(ctx context.Context, c *client.Client) error {
			if err := c.ChangeAdmin(ctx, args[0]); err != nil {
				return fmt.Errorf("change-admin: %w", err)
			}
			fmt.Printf("✓ Admin is now %s\n", args[0])
			return nil
		})
	},
}

var changeOwnerCmd = &cobra.Command{
	Use:   "change-owner <outgoing> <incoming>",
	Short: "Swap a guardian after the pair has reached quorum",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(true, func(ctx context.Context, c *client.Client) error {
			guardians, err := c.ChangeOwner(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("change-owner: %w", err)
			}
			fmt.Println("✓ Guardian replaced")
			for i, g := range guardians {
				fmt.Printf("  %d. %s\n", i+1, g)
			}
			return nil
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Close the vault gate (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(true, func(ctx context.Context, c *client.Client) error {
			if err := c.Pause(ctx); err != nil {
				return fmt.Errorf("pause: %w", err)
			}
			fmt.Println("✓ Vault paused")
			return nil
		})
	},
}

var unpauseCmd = &cobra.Command{
	Use:   "unpause",
	Short: "Reopen the vault gate (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(true, func(ctx context.Context, c *client.Client) error {
			if err := c.Unpause(ctx); err != nil {
				return fmt.Errorf("unpause: %w", err)
			}
			fmt.Println("✓ Vault unpaused")
			return nil
		})
	},
}

func init() {
	approvalsCmd.Flags().StringVar(&approvalsAmount, "amount", "", "Withdrawal amount (approveWithdraw)")
	approvalsCmd.Flags().StringVar(&approvalsOutgoing, "outgoing", "", "Outgoing guardian (changeOwner)")
	approvalsCmd.Flags().StringVar(&approvalsIncoming, "incoming", "", "Incoming guardian (changeOwner)")

	rootCmd.AddCommand(approveCmd, approveWithdrawalCmd, approveOwnerChangeCmd, approvalsCmd,
		releaseCmd, changeAdminCmd, changeOwnerCmd, pauseCmd, unpauseCmd)
}
