package core

import (
	"bytes"
	"encoding/csv"
	"errors"
)

// recordReader reads CSV records from an in-memory source and reports the
// physical line each record starts on.
//
// An opening quote that is never closed makes encoding/csv swallow every
// following line into one field, up to the next quote or the end of input.
// After a quote error spanning several lines the reader restarts on the line
// after the one the bad record started on, so only that line is lost.
type recordReader struct {
	data     []byte
	cr       *csv.Reader
	offset   int64 // start of cr's input within data
	lineBase int   // lines before offset
	fields   int
}

func newRecordReader(data []byte) *recordReader {
	return &recordReader{data: data, cr: newCSVReader(bytes.NewReader(data))}
}

// Header reads the first record. Its length fixes the field count of every
// later record.
func (rr *recordReader) Header() ([]string, error) {
	h, err := rr.cr.Read()
	if err == nil {
		rr.fields = len(h)
	}
	return h, err
}

// Read returns the next record and its starting line. Parse errors are
// returned as *csv.ParseError with lines counted from the start of data.
func (rr *recordReader) Read() ([]string, int, error) {
	record, err := rr.cr.Read()
	if err == nil {
		line, _ := rr.cr.FieldPos(0)
		return record, rr.lineBase + line, nil
	}

	var pe *csv.ParseError
	if !errors.As(err, &pe) {
		return record, 0, err
	}

	abs := *pe
	abs.StartLine += rr.lineBase
	abs.Line += rr.lineBase

	if errors.Is(pe.Err, csv.ErrQuote) && pe.Line > pe.StartLine {
		rr.restartAfter(pe.StartLine)
	}
	return record, abs.StartLine, &abs
}

// restartAfter starts a fresh csv.Reader at the line following line, counted
// relative to the current reader.
func (rr *recordReader) restartAfter(line int) {
	rest := rr.data[rr.offset:]
	skip := 0
	for i := 0; i < line; i++ {
		j := bytes.IndexByte(rest[skip:], '\n')
		if j < 0 {
			skip = len(rest)
			break
		}
		skip += j + 1
	}

	rr.offset += int64(skip)
	rr.lineBase += line
	rr.cr = newCSVReader(bytes.NewReader(rr.data[rr.offset:]))
	rr.cr.FieldsPerRecord = rr.fields
}
