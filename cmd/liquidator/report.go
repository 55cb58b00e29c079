package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"evm-liquidation-lab/internal/backtest"
	"evm-liquidation-lab/internal/config"
	"evm-liquidation-lab/internal/reporting"
)

var (
	reportRunID  string
	reportDir    string
	reportBucket string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Re-render the report of a persisted run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if reportRunID == "" {
			return fmt.Errorf("--run-id is required")
		}
		ctx := cmd.Context()

		stores, closeStores, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStores()

		res, err := stores.Load(ctx, reportRunID, nil)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), res)
		return writeReport(ctx, cfg, reportDir, reportBucket, res)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportRunID, "run-id", "", "Run to re-render (required)")
	addReportFlags(reportCmd, &reportDir, &reportBucket)
}

func addReportFlags(cmd *cobra.Command, dir, bucket *string) {
	cmd.Flags().StringVar(dir, "report-dir", "", "Report output directory (default from config)")
	cmd.Flags().StringVar(bucket, "s3-bucket", "", "Also upload the report to this S3 bucket")
}

// reportSink writes to the report directory and, when a bucket is set, S3.
func reportSink(ctx context.Context, c *config.Config, dir, bucket string) (reporting.Sink, error) {
	if dir == "" {
		dir = c.Report.Dir
	}
	if bucket == "" {
		bucket = c.Report.S3Bucket
	}
	sinks := reporting.MultiSink{reporting.NewFileSink(dir)}
	if bucket != "" {
		s3, err := reporting.NewS3Sink(ctx, reporting.S3Options{
			Bucket:          bucket,
			Prefix:          c.Report.S3Prefix,
			Region:          c.Report.S3Region,
			Endpoint:        c.Report.S3Endpoint,
			AccessKeyID:     c.Report.S3AccessKeyID,
			SecretAccessKey: c.Report.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3)
	}
	return sinks, nil
}

func writeReport(ctx context.Context, c *config.Config, dir, bucket string, res *backtest.Result) error {
	sink, err := reportSink(ctx, c, dir, bucket)
	if err != nil {
		return err
	}
	r := reporting.NewReport(res.Summary, res.Gate, res.Rows, time.Now())
	base := fmt.Sprintf("%s_%s", res.Summary.Mode, res.Summary.RunID)
	_, err = reporting.NewGenerator(sink, log.WithComponent("reporting")).Write(ctx, base, r)
	return err
}

// printSummary writes the human-readable result of a run.
func printSummary(w io.Writer, res *backtest.Result) {
	s := res.Summary
	fmt.Fprintf(w, "run %s (%s)\n", s.RunID, s.Mode)
	fmt.Fprintf(w, "  events %d  signals %d  profitable %d\n", s.Events, s.Signals, s.Profitable)
	fmt.Fprintf(w, "  attempts %d  successful %d  failed %d\n\n", s.TotalAttempts, s.Successful, s.Failed)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tCOUNT\tP50\tP95\tP99\tMEAN\tMAX")
	for _, m := range s.Metrics {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\n",
			strings.TrimSuffix(m.Metric, "_us"), m.Count, m.P50, m.P95, m.P99, m.Mean, m.Max)
	}
	tw.Flush()

	if res.Gate == nil {
		return
	}
	fmt.Fprintf(w, "\nlatency gate: %s\n", res.Gate.Decision)
	for _, t := range res.Gate.Targets {
		status := "PASS"
		if !t.Pass {
			status = "FAIL"
		}
		actual := "n/a"
		if t.Present {
			actual = t.Actual.String()
		}
		fmt.Fprintf(w, "  %-4s %-17s P%g %s < %s\n", status, t.Name, t.Percentile, actual, t.Limit)
	}
	for _, c := range res.Gate.NOGOChecks {
		if !c.Pass {
			fmt.Fprintf(w, "  TRIG %s (%s)\n", c.Name, c.Actual)
		}
	}
}
