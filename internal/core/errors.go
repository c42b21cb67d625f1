package core

import (
	"errors"
	"fmt"
)

// Fatal import error kinds. Match them with errors.Is on the error returned
// by Importer.Import; the concrete type is *ImportError.
var (
	ErrIO          = errors.New("io error")
	ErrSchema      = errors.New("schema error")
	ErrTransaction = errors.New("transaction error")
	ErrHeader      = errors.New("header error")
	ErrCanceled    = errors.New("import cancelled")
)

// ErrFileTooLarge is wrapped in an ErrIO failure when the source exceeds the
// configured size limit.
var ErrFileTooLarge = errors.New("file too large")

// ErrExecDisabled is returned by Service.Exec when raw statements are turned off.
var ErrExecDisabled = errors.New("raw exec is disabled")

// ImportPhase names the importer state in which a run stopped.
type ImportPhase string

const (
	PhaseRead      ImportPhase = "read"
	PhaseSchema    ImportPhase = "schema"
	PhaseBegin     ImportPhase = "begin"
	PhaseHeader    ImportPhase = "header"
	PhaseRows      ImportPhase = "rows"
	PhaseCommit    ImportPhase = "commit"
	PhaseCommitted ImportPhase = "committed"
)

// ImportError is a fatal import failure. Nothing from the run is visible in
// the store when one is returned.
type ImportError struct {
	Phase ImportPhase
	Kind  error // one of ErrIO, ErrSchema, ErrTransaction, ErrHeader, ErrCanceled
	Err   error
}

func newImportError(phase ImportPhase, kind, err error) *ImportError {
	return &ImportError{Phase: phase, Kind: kind, Err: err}
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%v during %s: %v", e.Kind, e.Phase, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *ImportError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
