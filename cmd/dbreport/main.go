// Command dbreport replays a driver's query journal and its indexing
// worker state into a single workbook: one sheet for journaled statements,
// one for indexing cycles, one for the dead-letter ledger.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/xuri/excelize/v2"

	"github.com/maverikod/code-analysis-db/pkg/client"
	"github.com/maverikod/code-analysis-db/pkg/dbapi"
	"github.com/maverikod/code-analysis-db/pkg/dlq"
	"github.com/maverikod/code-analysis-db/pkg/journal"
	"github.com/maverikod/code-analysis-db/pkg/logging"
)

func main() {
	socketPath := flag.String("socket", "", "driver Unix domain socket path, for the Cycles sheet")
	journalPath := flag.String("journal", "", "journal file path, for the Journal sheet")
	dlqPath := flag.String("dlq", "", "dead-letter bbolt database path, for the DeadLetters sheet")
	out := flag.String("out", "report.xlsx", "output .xlsx path")
	flag.Parse()

	if *socketPath == "" && *journalPath == "" && *dlqPath == "" {
		fmt.Fprintln(os.Stderr, "dbreport: at least one of --socket, --journal, --dlq is required")
		os.Exit(2)
	}

	f := excelize.NewFile()
	defer f.Close()

	wroteSheet := false
	if *journalPath != "" {
		if err := writeJournalSheet(f, *journalPath); err != nil {
			fmt.Fprintf(os.Stderr, "dbreport: journal sheet: %v\n", err)
			os.Exit(1)
		}
		wroteSheet = true
	}
	if *socketPath != "" {
		if err := writeCyclesSheet(f, *socketPath); err != nil {
			fmt.Fprintf(os.Stderr, "dbreport: cycles sheet: %v\n", err)
			os.Exit(1)
		}
		wroteSheet = true
	}
	if *dlqPath != "" {
		if err := writeDeadLettersSheet(f, *dlqPath); err != nil {
			fmt.Fprintf(os.Stderr, "dbreport: dead letters sheet: %v\n", err)
			os.Exit(1)
		}
		wroteSheet = true
	}

	if wroteSheet {
		f.DeleteSheet("Sheet1")
	}

	if err := f.SaveAs(*out); err != nil {
		fmt.Fprintf(os.Stderr, "dbreport: failed to write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}

// readJournalEntries scans a journal file the same way journal.Replay does
// internally, but keeps every field of each entry instead of handing only
// sql/params to a callback.
func readJournalEntries(path string) ([]journal.Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []journal.Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry journal.Entry
		if err := sonic.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func writeJournalSheet(f *excelize.File, path string) error {
	entries, err := readJournalEntries(path)
	if err != nil {
		return err
	}

	sheet := "Journal"
	f.NewSheet(sheet)
	headers := []string{"Timestamp", "SQL", "TransactionID", "Success", "Error"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for i, e := range entries {
		row := i + 2
		values := []any{e.Timestamp, e.SQL, e.TransactionID, e.Success, e.Error}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return nil
}

func writeCyclesSheet(f *excelize.File, socketPath string) error {
	log := logging.Default()
	rpc := client.New(client.DefaultConfig(socketPath), log)
	if err := rpc.Connect(); err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer rpc.Disconnect()

	api := dbapi.New(rpc)
	result, err := api.Execute(context.Background(),
		`SELECT cycle_id, cycle_start_time, cycle_end_time, files_total_at_start,
		        files_indexed, files_failed, total_processing_time_seconds,
		        average_processing_time_seconds
		 FROM indexing_worker_stats ORDER BY cycle_start_time`, nil, "")
	if err != nil {
		return err
	}

	sheet := "Cycles"
	f.NewSheet(sheet)
	headers := []string{
		"CycleID", "StartTime", "EndTime", "FilesTotalAtStart",
		"FilesIndexed", "FilesFailed", "TotalProcessingSeconds", "AverageProcessingSeconds",
	}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	rows, _ := result["data"].([]any)
	for i, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		line := i + 2
		values := []any{
			row["cycle_id"], row["cycle_start_time"], row["cycle_end_time"],
			row["files_total_at_start"], row["files_indexed"], row["files_failed"],
			row["total_processing_time_seconds"], row["average_processing_time_seconds"],
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, line)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return nil
}

func writeDeadLettersSheet(f *excelize.File, dbPath string) error {
	ledger, err := dlq.Open(dbPath, 0)
	if err != nil {
		return err
	}
	defer ledger.Close()

	failures, err := ledger.List()
	if err != nil {
		return err
	}

	sheet := "DeadLetters"
	f.NewSheet(sheet)
	headers := []string{"ProjectID", "Path", "Error", "FailedAt", "RetryCount", "NextRetryAt"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for i, fail := range failures {
		row := i + 2
		values := []any{
			fail.ProjectID, fail.Path, fail.ErrorText,
			fail.FailedAt.Format(time.RFC3339), fail.RetryCount,
			fail.NextRetryAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return nil
}
