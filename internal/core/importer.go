package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/modreports/internal/report"
	"github.com/JonMunkholm/modreports/internal/storage"
)

// ImporterOptions configures an Importer.
type ImporterOptions struct {
	Table          string // defaults to report.Table
	MaxFileSize    int64  // bytes; <= 0 means unlimited
	SourceEncoding string // WHATWG label; defaults to utf-8
}

// Importer loads CSV sources into the reports table.
//
// A run moves through read, schema, begin, header, rows and commit. Any
// failure before rows, a cancelled context, a lock held by another writer,
// or a failed commit aborts the run and rolls the transaction back. A data row that fails to parse or
// insert is recorded as a RowError and the run continues.
type Importer struct {
	store    storage.Store
	table    string
	maxSize  int64
	encoding string
	now      func() time.Time
}

// NewImporter validates opts and returns an Importer bound to store.
func NewImporter(store storage.Store, opts ImporterOptions) (*Importer, error) {
	if store == nil {
		return nil, errors.New("importer: nil store")
	}
	if _, err := lookupEncoding(opts.SourceEncoding); err != nil {
		return nil, err
	}

	table := opts.Table
	if table == "" {
		table = report.Table
	}

	return &Importer{
		store:    store,
		table:    table,
		maxSize:  opts.MaxFileSize,
		encoding: opts.SourceEncoding,
		now:      time.Now,
	}, nil
}

// Table returns the destination table.
func (im *Importer) Table() string { return im.table }

// Import reads source from r and inserts every data row in one transaction.
//
// The returned result is never nil. On a fatal error it describes how far
// the run got, Committed is false, and the error is an *ImportError.
func (im *Importer) Import(ctx context.Context, source string, r io.Reader) (*ImportResult, error) {
	start := im.now()
	res := &ImportResult{Source: source, Table: im.table, Phase: PhaseRead}
	defer func() { res.Duration = im.now().Sub(start) }()

	data, err := ReadSource(r, im.maxSize, im.encoding)
	if err != nil {
		return res, newImportError(PhaseRead, ErrIO, err)
	}

	res.Phase = PhaseSchema
	cols, err := im.store.Columns(ctx, im.table)
	if err != nil {
		return res, newImportError(PhaseSchema, ErrSchema, fmt.Errorf("read columns of %s: %w", im.table, err))
	}
	if len(cols) == 0 {
		return res, newImportError(PhaseSchema, ErrSchema, fmt.Errorf("table not found: %s has no columns", im.table))
	}
	res.Columns = cols
	stmt := NewInsertStatement(im.table, cols, im.store.Dialect())

	res.Phase = PhaseBegin
	tx, err := im.store.Begin(ctx)
	if err != nil {
		return res, newImportError(PhaseBegin, ErrTransaction, fmt.Errorf("begin transaction: %w", err))
	}
	// No-op if already committed; must still run after ctx is cancelled.
	defer tx.Rollback(context.WithoutCancel(ctx))

	res.Phase = PhaseHeader
	rr := newRecordReader(data)
	headers, err := rr.Header()
	if errors.Is(err, io.EOF) {
		return res, newImportError(PhaseHeader, ErrHeader, errors.New("empty file: no header line"))
	}
	if err != nil {
		return res, newImportError(PhaseHeader, ErrHeader, fmt.Errorf("invalid csv header: %w", err))
	}

	res.Phase = PhaseRows
	for {
		if err := ctx.Err(); err != nil {
			return res, newImportError(PhaseRows, ErrCanceled, err)
		}

		record, line, err := rr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		res.Attempted++

		if err != nil {
			res.addRowError(RowError{
				Line:   line,
				Reason: fmt.Sprintf("invalid csv: %v", err),
				Data:   record,
			})
			continue
		}

		row := MapRecord(headers, record)

		if err := tx.Insert(ctx, stmt.SQL, stmt.Bind(row)); err != nil {
			if errors.Is(err, storage.ErrSavepoint) || errors.Is(err, storage.ErrBusy) {
				return res, newImportError(PhaseRows, ErrTransaction, err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, newImportError(PhaseRows, ErrCanceled, ctxErr)
			}
			res.addRowError(RowError{
				Line:   line,
				Reason: fmt.Sprintf("insert: %v", err),
				Data:   record,
			})
			continue
		}
		res.Inserted++
	}

	res.Phase = PhaseCommit
	if err := tx.Commit(ctx); err != nil {
		return res, newImportError(PhaseCommit, ErrTransaction, fmt.Errorf("commit: %w", err))
	}

	res.Phase = PhaseCommitted
	res.Committed = true
	return res, nil
}

// newCSVReader returns a strict RFC 4180 reader: the header fixes the field
// count and bare quotes are errors.
func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 0
	cr.LazyQuotes = false
	return cr
}
