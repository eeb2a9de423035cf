package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentic-traveler/traveler/internal/app"
	"github.com/agentic-traveler/traveler/internal/observability"
	"github.com/agentic-traveler/traveler/internal/store"
	"github.com/agentic-traveler/traveler/internal/traveler"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage stored traveler records",
	}
	cmd.AddCommand(newUsersListCmd(), newUsersImportCmd())
	return cmd
}

func newUsersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored travelers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			built, err := buildQuiet(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = built.Cleanup() }()

			records, err := built.Store.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list travelers: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EXTERNAL ID\tNAME\tPROFILE FIELDS\tRECENT MESSAGES")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", rec.ExternalID, rec.Name(), len(rec.Profile), len(rec.History.RecentMessages))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 0, "maximum rows (0 = all)")
	return cmd
}

func newUsersImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.json",
		Short: "Create traveler records from a JSON file (object or array)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(args[0])
			if err != nil {
				return err
			}

			built, err := buildQuiet(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = built.Cleanup() }()

			if _, _, err := importRecords(cmd.Context(), built.Store, records, cmd.OutOrStdout()); err != nil {
				return err
			}
			if built.StoreMode == "memory" {
				fmt.Fprintln(cmd.ErrOrStderr(), memoryStoreNotice)
			}
			return nil
		},
	}
}

func readRecords(path string) ([]traveler.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data)
}

// importRecords creates each record, skipping external ids already stored.
func importRecords(ctx context.Context, st store.Store, records []traveler.Record, out io.Writer) (created, skipped int, err error) {
	for _, rec := range records {
		_, err := st.Create(ctx, rec)
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			skipped++
			fmt.Fprintf(out, "skip %s: already exists\n", rec.ExternalID)
		case err != nil:
			return created, skipped, fmt.Errorf("create %s: %w", rec.ExternalID, err)
		default:
			created++
		}
	}
	fmt.Fprintf(out, "imported %d traveler(s), skipped %d\n", created, skipped)
	return created, skipped, nil
}

// decodeRecords accepts a single record object or an array of records.
func decodeRecords(data []byte) ([]traveler.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("import file is empty")
	}
	var records []traveler.Record
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
	} else {
		var rec traveler.Record
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, rec)
	}
	for i, rec := range records {
		if rec.ExternalID == "" {
			return nil, fmt.Errorf("record %d: external_id is required", i)
		}
	}
	return records, nil
}

func buildQuiet(cmd *cobra.Command) (*app.BuildResult, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger("error", "console")
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), cfg, logger)
}
