package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"licenselink/internal/bootstrap"
	"licenselink/internal/bootstrap/logging"
	domain "licenselink/internal/domain/linking"
	"licenselink/internal/errs"
	"licenselink/internal/ports"
)

var errVerifyFailed = errors.New("link table failed verification")

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Compute and inspect notification to outcome links",
}

var linksRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute every link from the stored records",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := cmd.Context()

		summary, err := app.Linking.RebuildAll(ctx)
		if err != nil {
			logging.Error(ctx, "rebuild links failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "rebuild links")
		}

		if _, err := fmt.Fprintf(
			cmd.OutOrStdout(),
			"rebuilt links: run=%s groups=%d records=%d excluded=%d high=%d medium=%d total=%d duration_ms=%d\n",
			summary.RunID, summary.Groups, summary.Records, summary.Excluded,
			summary.High, summary.Medium, summary.Total, summary.DurationMS,
		); err != nil {
			return errs.Wrap(err, "write rebuild output")
		}
		return nil
	}),
}

var linksLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Recompute the links of the group a record belongs to",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := cmd.Context()

		recordID, _ := cmd.Flags().GetUint64("record")
		if recordID == 0 {
			return errors.New("--record is required")
		}

		if err := app.Linking.LinkOne(ctx, recordID); err != nil {
			logging.Error(ctx, "link record failed", slog.Uint64("record_id", recordID), slog.Any("err", errs.Loggable(err)))
			return errs.Wrapf(err, "link record %d", recordID)
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "linked record: %d\n", recordID); err != nil {
			return errs.Wrap(err, "write link output")
		}
		return nil
	}),
}

var linksShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the link of a notification or the reverse link of an outcome",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := cmd.Context()

		recordID, _ := cmd.Flags().GetUint64("record")
		if recordID == 0 {
			return errors.New("--record is required")
		}

		rec, err := app.Linking.GetRecord(ctx, recordID)
		if err != nil {
			return errs.Wrapf(err, "get record %d", recordID)
		}

		out := cmd.OutOrStdout()
		if err := writeRecord(out, rec); err != nil {
			return errs.Wrap(err, "write record")
		}

		if rec.Kind == string(domain.KindNotification) {
			link, ok, err := app.Linking.GetLink(ctx, recordID)
			if err != nil {
				return errs.Wrapf(err, "get link of %d", recordID)
			}
			if ok {
				_, err = fmt.Fprintf(out, "link: outcome=%d kind=%s date=%s confidence=%s days_gap=%d\n",
					link.OutcomeID, link.OutcomeKind, link.OutcomeDate, link.Confidence, link.DaysGap)
			} else {
				_, err = fmt.Fprintln(out, "link: none")
			}
			if err != nil {
				return errs.Wrap(err, "write show output")
			}

			status, err := app.Linking.GetOutcomeStatus(ctx, recordID)
			if err != nil {
				return errs.Wrapf(err, "get outcome status of %d", recordID)
			}
			return errs.Wrap(writeStatus(out, recordID, status), "write show output")
		}

		reverse, ok, err := app.Linking.GetReverseLink(ctx, recordID)
		if err != nil {
			return errs.Wrapf(err, "get reverse link of %d", recordID)
		}
		if !ok {
			_, err = fmt.Fprintln(out, "linked notification: none")
			return errs.Wrap(err, "write show output")
		}
		_, err = fmt.Fprintf(out, "linked notification: id=%d date=%s category=%s business=%q confidence=%s days_gap=%d\n",
			reverse.NotificationID, reverse.NotificationDate, reverse.NotificationCategory,
			reverse.BusinessName, reverse.Confidence, reverse.DaysGap)
		return errs.Wrap(err, "write show output")
	}),
}

var linksStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Derive the outcome status of one or more notifications",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := cmd.Context()

		ids, _ := cmd.Flags().GetUintSlice("record")
		if len(ids) == 0 {
			return errors.New("at least one --record is required")
		}

		recordIDs := make([]uint64, 0, len(ids))
		for _, id := range ids {
			recordIDs = append(recordIDs, uint64(id))
		}

		statuses, err := app.Linking.AnnotateStatuses(ctx, recordIDs)
		if err != nil {
			logging.Error(ctx, "annotate statuses failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "annotate statuses")
		}

		out := cmd.OutOrStdout()
		for _, id := range recordIDs {
			st, ok := statuses[id]
			if !ok {
				if _, err := fmt.Fprintf(out, "%d\tmissing or not a notification\n", id); err != nil {
					return errs.Wrap(err, "write status output")
				}
				continue
			}
			if err := writeStatus(out, id, st); err != nil {
				return errs.Wrap(err, "write status output")
			}
		}
		return nil
	}),
}

var linksStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show link and status counts",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := cmd.Context()

		stats, err := app.Linking.PipelineStats(ctx)
		if err != nil {
			logging.Error(ctx, "collect pipeline stats failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "collect pipeline stats")
		}

		var b strings.Builder
		fmt.Fprintf(&b, "notifications: %d\n", stats.Notifications)
		for _, status := range domain.AllStatuses {
			fmt.Fprintf(&b, "  %-12s %d\n", status, stats.Statuses[status])
		}

		confidences := make([]string, 0, len(stats.Links))
		for confidence := range stats.Links {
			confidences = append(confidences, confidence)
		}
		sort.Strings(confidences)
		b.WriteString("links:\n")
		for _, confidence := range confidences {
			fmt.Fprintf(&b, "  %-12s %d\n", confidence, stats.Links[confidence])
		}

		if stats.LastRebuild != nil {
			fmt.Fprintf(&b, "last rebuild: run=%s started_at=%s total=%d duration_ms=%d\n",
				stats.LastRebuild.RunID, stats.LastRebuild.StartedAt, stats.LastRebuild.Total, stats.LastRebuild.DurationMS)
		} else {
			b.WriteString("last rebuild: none\n")
		}

		if _, err := io.WriteString(cmd.OutOrStdout(), b.String()); err != nil {
			return errs.Wrap(err, "write stats output")
		}
		return nil
	}),
}

var linksVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the stored links against a fresh computation",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := cmd.Context()

		report, err := app.Linking.Verify(ctx)
		if err != nil {
			logging.Error(ctx, "verify links failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "verify links")
		}

		out := cmd.OutOrStdout()
		var b strings.Builder
		fmt.Fprintf(&b, "groups checked: %d\nlinks checked: %d\n", report.GroupsChecked, report.LinksChecked)
		for _, drift := range report.Drifts {
			fmt.Fprintf(&b, "drift %s: missing=%d unexpected=%d\n", drift.Group, len(drift.Missing), len(drift.Unexpected))
			for _, link := range drift.Missing {
				fmt.Fprintf(&b, "  - missing %s\n", formatLink(link))
			}
			for _, link := range drift.Unexpected {
				fmt.Fprintf(&b, "  - unexpected %s\n", formatLink(link))
			}
		}
		for _, v := range report.Violations {
			fmt.Fprintf(&b, "violation %s: %s", v.Kind, formatLink(v.Link))
			if v.Note != "" {
				fmt.Fprintf(&b, " (%s)", v.Note)
			}
			b.WriteString("\n")
		}
		if _, err := io.WriteString(out, b.String()); err != nil {
			return errs.Wrap(err, "write verify output")
		}

		if !report.OK() {
			logging.Warn(ctx, "link table failed verification",
				slog.Int("drifts", len(report.Drifts)),
				slog.Int("violations", len(report.Violations)),
			)
			return errVerifyFailed
		}
		_, err = fmt.Fprintln(out, "ok")
		return errs.Wrap(err, "write verify output")
	}),
}

func writeRecord(w io.Writer, rec ports.LicenseRecord) error {
	_, err := fmt.Fprintf(w, "record %d: kind=%s license=%s type=%s date=%s business=%q\n",
		rec.ID, rec.Kind, rec.LicenseNumber, rec.ApplicationType, rec.EventDate, rec.BusinessName)
	return err
}

func writeStatus(w io.Writer, id uint64, st domain.OutcomeStatus) error {
	line := fmt.Sprintf("%d\t%s", id, st.Status)
	if st.Linked() {
		line += fmt.Sprintf("\toutcome=%d date=%s confidence=%s days_gap=%d",
			st.OutcomeRecordID, st.OutcomeDate.Format(time.DateOnly), st.LinkConfidence, st.DaysGap)
	}
	if st.Detail != "" {
		line += "\t" + st.Detail
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func formatLink(link ports.RecordLink) string {
	return fmt.Sprintf("%d->%d %s gap=%d", link.NotificationID, link.OutcomeID, link.Confidence, link.DaysGap)
}

func init() {
	rootCmd.AddCommand(linksCmd)
	linksCmd.AddCommand(linksRebuildCmd, linksLinkCmd, linksShowCmd, linksStatusCmd, linksStatsCmd, linksVerifyCmd)

	linksLinkCmd.Flags().Uint64("record", 0, "Record id whose group is relinked")
	linksShowCmd.Flags().Uint64("record", 0, "Notification or outcome record id")
	linksStatusCmd.Flags().UintSlice("record", nil, "Notification record id (repeatable)")
}
