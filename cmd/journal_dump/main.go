// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// journal_dump prints the routing decision journal.
//
// The journal records every routed request in BadgerDB. This tool opens it
// read-only and prints the newest entries first: request id, origin,
// utterance, source, calls, timings and TTL remaining.
//
// Usage:
//
//	journal_dump [--path /path/to/journal] [--limit 20] [--json]
//
// If --path is not given, reads SPIKE_JOURNAL_DIR from the environment,
// falling back to ~/.spike/journal/.
//
// Exit codes:
//
//	0 - success (including an empty journal)
//	1 - error opening or reading the database
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/spike/services/journal"
)

func main() {
	pathFlag := flag.String("path", "", "Path to journal BadgerDB directory (overrides SPIKE_JOURNAL_DIR env var)")
	limitFlag := flag.Int("limit", 20, "Maximum entries to print, 0 for all")
	jsonFlag := flag.Bool("json", false, "Print raw JSON entries, one per line")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("SPIKE_JOURNAL_DIR")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".spike", "journal")
	}

	if !*jsonFlag {
		fmt.Printf("Journal path: %s\n", dbPath)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if !*jsonFlag {
			fmt.Println("Journal directory does not exist. Start spike serve with SPIKE_JOURNAL_DIR set.")
		}
		os.Exit(0)
	}

	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil).
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	type row struct {
		key       string
		expiresAt time.Time
		hasExpiry bool
		raw       []byte
		entry     journal.Entry
		decodeErr error
	}

	var rows []row

	err = db.View(func(txn *dgbadger.Txn) error {
		iopts := dgbadger.DefaultIteratorOptions
		iopts.Reverse = true
		it := txn.NewIterator(iopts)
		defer it.Close()

		prefix := []byte(journal.KeyPrefix)
		for it.Seek(append(append([]byte{}, prefix...), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if *limitFlag > 0 && len(rows) >= *limitFlag {
				break
			}
			item := it.Item()
			r := row{key: string(item.Key())}

			// ExpiresAt is Unix seconds, 0 = no expiry.
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				r.hasExpiry = true
				r.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				r.decodeErr = fmt.Errorf("copy value: %w", err)
				rows = append(rows, r)
				continue
			}
			r.raw = raw
			r.entry, r.decodeErr = journal.DecodeEntry(raw)
			rows = append(rows, r)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if *jsonFlag {
		for _, r := range rows {
			if r.decodeErr == nil {
				fmt.Println(string(r.raw))
			}
		}
		return
	}

	if len(rows) == 0 {
		fmt.Println("\nNo journal entries found.")
		os.Exit(0)
	}

	fmt.Printf("\nShowing %d entr%s, newest first:\n", len(rows), plural(len(rows), "y", "ies"))
	fmt.Println(strings.Repeat("─", 80))

	for i, r := range rows {
		fmt.Printf("\n[%d] Key:        %s\n", i+1, r.key)
		fmt.Printf("    TTL:        %s\n", formatTTL(r.hasExpiry, r.expiresAt))
		fmt.Printf("    Raw size:   %s\n", formatBytes(len(r.raw)))

		if r.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", r.decodeErr)
			continue
		}

		e := r.entry
		fmt.Printf("    Request:    %s (%s)\n", e.RequestID, e.Origin)
		fmt.Printf("    Time:       %s\n", e.Timestamp.Format("2006-01-02 15:04:05.000 MST"))
		fmt.Printf("    Utterance:  %q\n", e.Utterance)
		if e.Error != "" {
			fmt.Printf("    Error:      %s\n", e.Error)
		}
		if e.Result == nil {
			continue
		}
		res := e.Result
		conf := "n/a"
		if res.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *res.Confidence)
		}
		fmt.Printf("    Source:     %s (confidence %s)\n", res.Source, conf)
		fmt.Printf("    Timing:     total %.1fms, transcription %.1fms, routing %.1fms\n",
			res.TotalTimeMs, res.TranscriptionTimeMs, res.RoutingTimeMs)
		for _, c := range res.FunctionCalls {
			args, _ := json.Marshal(c.Arguments)
			fmt.Printf("    Call:       %s %s\n", c.Name, args)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d entr%s, journal path: %s\n",
		len(rows), plural(len(rows), "y", "ies"), dbPath)
}

// formatTTL describes the time left before an entry expires.
func formatTTL(hasExpiry bool, expiresAt time.Time) string {
	if !hasExpiry {
		return "no expiry set"
	}
	remaining := time.Until(expiresAt)
	if remaining < 0 {
		return fmt.Sprintf("EXPIRED (%s ago)", (-remaining).Round(time.Second))
	}
	return fmt.Sprintf("%s remaining (expires %s)",
		remaining.Round(time.Second), expiresAt.Format("2006-01-02 15:04:05 MST"))
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "journal_dump: "+format+"\n", args...)
	os.Exit(1)
}
