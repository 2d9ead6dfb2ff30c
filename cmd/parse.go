package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/varunsharma6956/ost-mail-searcher/archive"
	"github.com/varunsharma6956/ost-mail-searcher/config"
	"github.com/varunsharma6956/ost-mail-searcher/model"
	"github.com/varunsharma6956/ost-mail-searcher/progress"
	"github.com/varunsharma6956/ost-mail-searcher/service"
	"github.com/varunsharma6956/ost-mail-searcher/state"
)

var (
	startDate string
	endDate   string
	format    string
	reportDir string
	topN      int
)

var parseCmd = &cobra.Command{
	Use:   "parse [archive file]",
	Short: "Parse an archive offline and print the records in a date range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if format != "json" && format != "summary" {
			return fmt.Errorf("invalid --format: %s", format)
		}

		cfg, err := config.LoadConfig(cmd)
		if err != nil {
			return err
		}

		// Records go to stdout, so logs use stderr.
		logger, cleanup, err := setupLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		path := args[0]
		registry, err := newRegistry(cfg, logger)
		if err != nil {
			return fmt.Errorf("archive registry: %w", err)
		}

		total := 0
		if counter, ok := registry.Lookup(path).(archive.Counter); ok && format == "summary" {
			if total, err = counter.CountMessages(path); err != nil {
				logger.Warn("unable to count messages", "path", path, "err", err)
				total = 0
			}
		}
		bar := progress.New(total, cfg.LogLevel)

		svc, err := service.New(service.Options{
			Registry:   registry,
			Store:      state.NewStore(),
			Extensions: cfg.Extensions,
			UploadDir:  cfg.UploadDir,
			Logger:     logger,
			OnEvent:    bar.Update,
		})
		if err != nil {
			return fmt.Errorf("service.New: %w", err)
		}

		res, err := svc.IngestPath(cmd.Context(), path)
		bar.Stop()
		if err != nil {
			return err
		}

		found := svc.Search(startDate, endDate)

		if reportDir != "" {
			if err := saveCSVReports(found.Records, res.Summary.Folders, reportDir, 1000); err != nil {
				return fmt.Errorf("error saving CSV reports: %w", err)
			}
			logger.Info("reports saved", "dir", reportDir)
		}

		if format == "json" {
			return writeRecords(cmd.OutOrStdout(), found.Records)
		}

		progress.PrintSummary(res.Summary, len(found.Records), res.Duration)
		fmt.Printf("\nTop %d senders:\n", topN)
		printTopSenders(found.Records, topN)
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVar(&startDate, "start", "", "Inclusive lower bound, ISO-8601 date or date-time")
	parseCmd.Flags().StringVar(&endDate, "end", "", "Inclusive upper bound, ISO-8601 date or date-time")
	parseCmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or summary")
	parseCmd.Flags().StringVarP(&reportDir, "output", "o", "", "Directory for CSV reports, empty disables them")
	parseCmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top senders to display in the summary")
	rootCmd.AddCommand(parseCmd)
}

func writeRecords(w io.Writer, records []model.EmailRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func senderCounts(records []model.EmailRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		key := r.SenderEmail
		if key == "" {
			key = r.SenderName
		}
		counts[key]++
	}
	return counts
}

func printTopSenders(records []model.EmailRecord, limit int) {
	for i, p := range sortedCounts(senderCounts(records)) {
		if i >= limit {
			break
		}
		fmt.Printf("%d. %s (%d)\n", i+1, p.Key, p.Value)
	}
}

type pair struct {
	Key   string
	Value int
}

func sortedCounts(counts map[string]int) []pair {
	pairs := make([]pair, 0, len(counts))
	for k, v := range counts {
		pairs = append(pairs, pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})
	return pairs
}

// saveCSVReports writes report_senders.csv for the matching records and
// report_folders.csv for the whole archive.
func saveCSVReports(records []model.EmailRecord, folders map[string]int, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	reports := map[string]map[string]int{
		"senders": senderCounts(records),
		"folders": folders,
	}

	for name, counts := range reports {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", name))

		file, err := os.Create(filePath)
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)

		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}

		for i, p := range sortedCounts(counts) {
			if i >= limit {
				break
			}
			if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		file.Close()

		if err := writer.Error(); err != nil {
			return err
		}
	}

	return nil
}
