package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/unclebandit/certificate-service/internal/service"
)

var migrateLegacyAll bool

var migrateLegacyCmd = &cobra.Command{
	Use:   "migrate-legacy [dataset-id...]",
	Short: "Convert legacy-encoded datasets to the canonical JSON encoding",
	Long:  "Rewrites the stored columns and rows of each dataset as JSON arrays. Datasets that are already canonical are reported and left unchanged.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateLegacyAll == (len(args) > 0) {
			return fmt.Errorf("pass either dataset ids or --all")
		}

		ids := make([]uuid.UUID, 0, len(args))
		for _, arg := range args {
			id, err := uuid.Parse(arg)
			if err != nil {
				return fmt.Errorf("invalid dataset id %q: %w", arg, err)
			}
			ids = append(ids, id)
		}

		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if migrateLegacyAll {
			if ids, err = allDatasetIDs(cmd.Context(), a.Services.Datasets); err != nil {
				return err
			}
		}
		return migrateLegacy(cmd.Context(), cmd.OutOrStdout(), a.Services.Datasets, ids)
	},
}

func init() {
	migrateLegacyCmd.Flags().BoolVar(&migrateLegacyAll, "all", false, "Convert every dataset")
	rootCmd.AddCommand(migrateLegacyCmd)
}

func allDatasetIDs(ctx context.Context, datasets *service.DatasetService) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for page := 1; ; page++ {
		list, pagination, err := datasets.ListDatasets(ctx, service.Page{Page: page, PageSize: 100})
		if err != nil {
			return nil, err
		}
		for _, d := range list {
			ids = append(ids, d.ID)
		}
		if page >= pagination["total_pages"] {
			return ids, nil
		}
	}
}

// migrateLegacy converts each dataset and keeps going past failures.
func migrateLegacy(ctx context.Context, out io.Writer, datasets *service.DatasetService, ids []uuid.UUID) error {
	var failed int
	for _, id := range ids {
		res, err := datasets.MigrateLegacy(ctx, id)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s\tfailed: %v\n", id, err)
			continue
		}
		state := "converted"
		if res.AlreadyCanonical {
			state = "already canonical"
		}
		fmt.Fprintf(out, "%s\t%s\tcolumns=%d rows=%d\n", id, state, res.ColumnsConverted, res.RowsConverted)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d datasets failed", failed, len(ids))
	}
	return nil
}
