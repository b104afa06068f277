package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"licenselink/internal/bootstrap"
	"licenselink/internal/bootstrap/logging"
	"licenselink/internal/errs"
	"licenselink/internal/usecase/intake"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Load and inspect license records",
}

var recordsLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Insert records from a YAML file and link each new one",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return errors.New("--file is required")
		}
		publish, _ := cmd.Flags().GetBool("publish")

		result, err := app.Intake.LoadFile(ctx, file, intake.LoadOptions{Publish: publish})
		if err != nil {
			logging.Error(ctx, "load records failed", slog.String("file", file), slog.Any("err", errs.Loggable(err)))
			return errs.Wrapf(err, "load records from %s", file)
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "read=%d inserted=%d duplicates=%d invalid=%d linked=%d published=%d\n",
			result.Read, result.Inserted, result.Duplicates, result.Invalid, result.Linked, result.Published); err != nil {
			return errs.Wrap(err, "write load output")
		}
		for _, f := range result.Failures {
			if _, err := fmt.Fprintf(out, "  entry %d record=%d: %v\n", f.Index, f.RecordID, f.Err); err != nil {
				return errs.Wrap(err, "write load output")
			}
		}
		return nil
	}),
}

var recordsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print one stored record",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		recordID, _ := cmd.Flags().GetUint64("record")
		if recordID == 0 {
			return errors.New("--record is required")
		}

		rec, err := app.Linking.GetRecord(cmd.Context(), recordID)
		if err != nil {
			return errs.Wrapf(err, "get record %d", recordID)
		}
		return errs.Wrap(writeRecord(cmd.OutOrStdout(), rec), "write record")
	}),
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsLoadCmd, recordsShowCmd)

	recordsLoadCmd.Flags().String("file", "", "YAML file of records")
	recordsLoadCmd.Flags().Bool("publish", false, "Publish an insert event per new record instead of linking inline")
	recordsShowCmd.Flags().Uint64("record", 0, "Record id")
}
