package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jmerrifield20/wtomax/internal/audit"
	"github.com/jmerrifield20/wtomax/internal/custody"
	"github.com/jmerrifield20/wtomax/internal/genesis"
	"github.com/jmerrifield20/wtomax/internal/service"
	"github.com/jmerrifield20/wtomax/internal/store"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ── genesis ──────────────────────────────────────────────────────────────────

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Create or check a genesis document",
}

var (
	genAdmin       string
	genGuardians   []string
	genCirculating string
	genLocked      string
	genStart       string
	genOut         string
	genForce       bool
)

var genesisInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a genesis document for custodyd",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc := &genesis.Document{
			Symbol:      custody.DefaultSymbol,
			Admin:       genAdmin,
			Guardians:   genGuardians,
			Circulating: genCirculating,
			Locked:      genLocked,
		}
		if genStart != "" {
			t, err := time.Parse(time.RFC3339, genStart)
			if err != nil {
				return fmt.Errorf("--start must be RFC 3339: %w", err)
			}
			doc.Start = t.UTC()
		}
		if _, err := doc.NewVault(nil); err != nil {
			return fmt.Errorf("invalid genesis: %w", err)
		}

		raw, err := doc.Encode()
		if err != nil {
			return err
		}
		if genOut == "" || genOut == "-" {
			_, err := os.Stdout.Write(raw)
			return err
		}
		if _, err := os.Stat(genOut); err == nil && !genForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", genOut)
		}
		if err := os.WriteFile(genOut, raw, 0o644); err != nil {
			return fmt.Errorf("write genesis: %w", err)
		}
		fmt.Printf("✓ Genesis written to %s\n", genOut)
		return nil
	},
}

var genesisCheckCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Validate a genesis document and print the resulting vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := genesis.Load(args[0])
		if err != nil {
			return err
		}
		v, err := doc.NewVault(nil)
		if err != nil {
			return fmt.Errorf("invalid genesis: %w", err)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Field", "Value")
		table.Append("Symbol", v.Symbol())
		table.Append("Admin", v.Admin().String())
		for i, g := range v.Guardians() {
			table.Append("Guardian "+strconv.Itoa(i+1), g.String())
		}
		table.Append("Initial circulating", custody.FormatTokens(v.TotalSupply()))
		table.Append("Locked reserve", custody.FormatTokens(v.LockedReserve()))
		table.Render()
		return nil
	},
}

// ── simulate ─────────────────────────────────────────────────────────────────

var simGenesis string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the full vesting schedule offline and print the supply trajectory",
	Long: `simulate builds an in-memory vault from a genesis document (or the
default allocation), then for every release window has three guardians
approve and the admin release, advancing a manual clock by one interval
each time. Nothing touches a server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := simulate(simGenesis)
		if err != nil {
			return err
		}
		if asJSON() {
			return printJSON(rows)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Tranche", "Date", "Released", "Locked", "Total supply")
		for _, r := range rows {
			table.Append(strconv.Itoa(r.Tranche), r.Date.Format("2006-01-02"), r.Released, r.Locked, r.TotalSupply)
		}
		table.Render()
		return nil
	},
}

type simRow struct {
	Tranche     int       `json:"tranche"`
	Date        time.Time `json:"date"`
	Released    string    `json:"released"`
	Locked      string    `json:"locked"`
	TotalSupply string    `json:"total_supply"`
}

func simulate(genesisPath string) ([]simRow, error) {
	doc := &genesis.Document{
		Admin: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Guardians: []string{
			"0x1111111111111111111111111111111111111111",
			"0x2222222222222222222222222222222222222222",
			"0x3333333333333333333333333333333333333333",
			"0x4444444444444444444444444444444444444444",
			"0x5555555555555555555555555555555555555555",
		},
	}
	if genesisPath != "" {
		var err error
		if doc, err = genesis.Load(genesisPath); err != nil {
			return nil, err
		}
	}

	start := doc.Start
	if start.IsZero() {
		start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	clock := custody.NewManualClock(start)
	p, err := doc.Parse(clock)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	st := store.NewMemory()
	vault, _, err := service.Bootstrap(ctx, st, func() (*custody.Vault, error) {
		return custody.New(p.Guardians, p.Admin, p.Options...)
	})
	if err != nil {
		return nil, err
	}
	svc := service.NewCustodyService(vault, st, audit.NewMemoryLog(), zap.NewNop())

	var rows []simRow
	for {
		clock.Advance(custody.ReleaseInterval)
		for _, g := range p.Guardians[:custody.Quorum] {
			if _, err := svc.ApproveRequest(ctx, g, custody.TagRelease); err != nil {
				return nil, fmt.Errorf("approve: %w", err)
			}
		}
		tranche, err := svc.Release(ctx, p.Admin)
		if errors.Is(err, custody.ErrScheduleComplete) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("release: %w", err)
		}
		status := svc.Status()
		rows = append(rows, simRow{
			Tranche:     status.Schedule.TranchesReleased,
			Date:        clock.Now(),
			Released:    custody.FormatTokens(tranche),
			Locked:      custody.FormatTokens(status.Schedule.LockedReserve),
			TotalSupply: custody.FormatTokens(status.TotalSupply),
		})
	}
}

func init() {
	genesisInitCmd.Flags().StringVar(&genAdmin, "admin", "", "Super administrator address")
	genesisInitCmd.Flags().StringSliceVar(&genGuardians, "guardian", nil, "Guardian address (repeat 5 times)")
	genesisInitCmd.Flags().StringVar(&genCirculating, "circulating", "7000000", "Initial circulating supply minted to the admin")
	genesisInitCmd.Flags().StringVar(&genLocked, "locked", "63000000", "Reserve released over the vesting schedule")
	genesisInitCmd.Flags().StringVar(&genStart, "start", "", "Vesting clock origin (RFC 3339); default is custodyd's first start")
	genesisInitCmd.Flags().StringVar(&genOut, "out", "-", "Output path, - for stdout")
	genesisInitCmd.Flags().BoolVar(&genForce, "force", false, "Overwrite an existing file")
	_ = genesisInitCmd.MarkFlagRequired("admin")
	_ = genesisInitCmd.MarkFlagRequired("guardian")

	simulateCmd.Flags().StringVar(&simGenesis, "genesis", "", "Genesis document (default allocation when empty)")

	genesisCmd.AddCommand(genesisInitCmd, genesisCheckCmd)
	rootCmd.AddCommand(genesisCmd, simulateCmd)
}
