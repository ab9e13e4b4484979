// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal persists routing decisions in BadgerDB.
//
// Every routed request is appended as one JSON entry. Entries expire through
// Badger's native TTL; no application-level cleanup runs.
//
// Storage layout:
//
//	journal/v1/{unix-nano, zero padded}/{request-id}  ->  JSON Entry
//	                                                      TTL: 7 days
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/spike/services/routing"
)

// DefaultTTL is the lifetime of a journal entry.
const DefaultTTL = 7 * 24 * time.Hour

// KeyPrefix is prepended to every journal key. Versioned to allow format
// changes without collision.
const KeyPrefix = "journal/v1/"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal: store is closed")

var appendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "spike",
	Subsystem: "journal",
	Name:      "appends_total",
	Help:      "Journal appends by outcome: ok, error",
}, []string{"outcome"})

// Entry is one routing decision.
type Entry struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Origin names the entry point: route, transcribe_and_act, cli.
	Origin    string `json:"origin"`
	Utterance string `json:"utterance"`

	Result *routing.RoutingResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Store is a BadgerDB-backed journal.
//
// Thread Safety: Safe for concurrent use. Badger transactions are
// per-goroutine.
type Store struct {
	db     *dgbadger.DB
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens or creates a journal in dir.
//
// Inputs:
//
//	dir  - Directory for the Badger files. Created if missing.
//	opts - Optional settings.
//
// Outputs:
//
//	*Store - The store. Nil on error. Close it when done.
//	error  - Non-nil if Badger could not open dir.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal: directory is required")
	}
	return open(dgbadger.DefaultOptions(dir).WithLogger(nil), opts...)
}

// OpenInMemory opens a journal that lives only in memory.
func OpenInMemory(opts ...Option) (*Store, error) {
	return open(dgbadger.DefaultOptions("").WithInMemory(true).WithLogger(nil), opts...)
}

func open(bopts dgbadger.Options, opts ...Option) (*Store, error) {
	db, err := dgbadger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("journal: open badger: %w", err)
	}
	s := &Store{db: db, ttl: DefaultTTL, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

// Append writes e with the store's TTL.
//
// Description:
//
//	A zero Timestamp is set to now. RequestID must be non-empty; it keeps
//	keys unique when two entries share a nanosecond.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	if e.RequestID == "" {
		return fmt.Errorf("journal: entry has no request id")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}

	raw, err := json.Marshal(e)
	if err != nil {
		appendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("journal encode: %w", err)
	}

	key := Key(e.Timestamp, e.RequestID)
	err = s.db.Update(func(txn *dgbadger.Txn) error {
		return txn.SetEntry(dgbadger.NewEntry(key, raw).WithTTL(s.ttl))
	})
	if err != nil {
		appendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("journal append: %w", err)
	}

	appendsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("journal: appended",
		slog.String("request_id", e.RequestID),
		slog.String("origin", e.Origin),
	)
	return nil
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every live entry.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db.IsClosed() {
		return nil, ErrClosed
	}

	var entries []Entry
	err := s.db.View(func(txn *dgbadger.Txn) error {
		iopts := dgbadger.DefaultIteratorOptions
		iopts.Reverse = true
		it := txn.NewIterator(iopts)
		defer it.Close()

		prefix := []byte(KeyPrefix)
		for it.Seek(append(append([]byte{}, prefix...), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy value: %w", err)
			}
			e, err := DecodeEntry(raw)
			if err != nil {
				s.logger.Warn("journal: skipping undecodable entry",
					slog.String("key", string(it.Item().Key())),
					slog.String("error", err.Error()),
				)
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal list: %w", err)
	}
	return entries, nil
}

// Key builds the journal key for a timestamp and request id.
func Key(ts time.Time, requestID string) []byte {
	return []byte(fmt.Sprintf("%s%019d/%s", KeyPrefix, ts.UnixNano(), requestID))
}

// ParseKey splits a journal key into its timestamp and request id.
func ParseKey(key []byte) (time.Time, string, error) {
	rest, ok := strings.CutPrefix(string(key), KeyPrefix)
	if !ok {
		return time.Time{}, "", fmt.Errorf("journal: key %q lacks prefix", key)
	}
	nanos, id, ok := strings.Cut(rest, "/")
	if !ok {
		return time.Time{}, "", fmt.Errorf("journal: malformed key %q", key)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("journal: malformed timestamp in key %q: %w", key, err)
	}
	return time.Unix(0, n), id, nil
}

// DecodeEntry decodes a stored entry.
func DecodeEntry(raw []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("journal decode: %w", err)
	}
	return e, nil
}
