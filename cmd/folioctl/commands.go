package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/models"
)

func auditCmd() *cobra.Command {
	var (
		campusID int64
		month    int
		year     int
		dryRun   bool
		history  bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Re-derive channel folios of a campus month and repair drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			if history {
				reports, err := a.Auditor.Reports(ctx, campusID, month, year)
				if err != nil {
					return err
				}
				return printJSON(cmd, reports)
			}

			report, err := a.Auditor.Audit(ctx, campusID, month, year, dryRun)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}

	cmd.Flags().Int64VarP(&campusID, "campus", "c", 0, "Campus id")
	cmd.Flags().IntVarP(&month, "month", "m", 0, "Month (1-12)")
	cmd.Flags().IntVarP(&year, "year", "y", 0, "Year")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without writing")
	cmd.Flags().BoolVar(&history, "history", false, "List the stored reports of the month instead of auditing")
	cmd.MarkFlagRequired("campus")
	cmd.MarkFlagRequired("month")
	cmd.MarkFlagRequired("year")

	return cmd
}

func importCmd() *cobra.Command {
	var campusID int64

	cmd := &cobra.Command{
		Use:   "import [file.csv]",
		Short: "Overwrite legacy folios from an old_folio,campus_id,new_folio CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := cmd.Context()
			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			report, err := a.Auditor.ImportLegacyFolios(ctx, f, campusID)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}

	cmd.Flags().Int64VarP(&campusID, "campus", "c", 0, "Campus id")
	cmd.MarkFlagRequired("campus")

	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			if err := a.Store.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func displayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "display [transaction-id]",
		Short: "Print the receipt folio of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			folio, err := a.Transactions.DisplayFolio(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), folio)
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert or update reference rows",
	}
	cmd.AddCommand(seedCampusCmd())
	cmd.AddCommand(seedCardCmd())
	return cmd
}

func seedCampusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "campus [id] [name]",
		Short: "Upsert a campus",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid campus id %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			campus := &models.Campus{ID: id, Name: args[1]}
			if err := a.Store.References.UpsertCampus(ctx, a.Store.DB(), campus); err != nil {
				return err
			}
			a.Campuses.Invalidate(ctx, id)
			return printJSON(cmd, campus)
		},
	}
}

func seedCardCmd() *cobra.Command {
	var (
		campusID int64
		name     string
		channel  string
		sat      bool
	)

	cmd := &cobra.Command{
		Use:   "card [id]",
		Short: "Upsert a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid card id %q: %w", args[0], err)
			}
			if !models.PaymentMethod(channel).Valid() {
				return fmt.Errorf("invalid channel %q", channel)
			}

			ctx := cmd.Context()
			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			card := &models.Card{
				ID:          id,
				CampusID:    campusID,
				Name:        name,
				ChannelHint: models.PaymentMethod(channel),
				SAT:         sat,
			}
			if err := a.Store.References.UpsertCard(ctx, a.Store.DB(), card); err != nil {
				return err
			}
			return printJSON(cmd, card)
		},
	}

	cmd.Flags().Int64VarP(&campusID, "campus", "c", 0, "Campus id")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Card name")
	cmd.Flags().StringVar(&channel, "channel", string(models.PaymentCard), "Channel the card is used for")
	cmd.Flags().BoolVar(&sat, "sat", false, "Keep the card on general numbering")
	cmd.MarkFlagRequired("campus")

	return cmd
}
