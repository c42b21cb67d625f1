package core

// error_messages.go maps technical errors to coded user messages. Users
// quote the code to support; support looks it up here.
//
// # Database (DB001-DB008)
//
//	DB001  duplicate key             "duplicate key"
//	DB002  unique constraint         "unique constraint", "violates unique"
//	DB003  foreign key               "foreign key constraint", "violates foreign key"
//	DB004  connection refused        "connection refused"
//	DB005  connection reset          "connection reset"
//	DB006  timeout                   "timeout"
//	DB007  deadlock                  "deadlock"
//	DB008  locked by another writer  storage.ErrBusy
//
// # File (FILE001-FILE005)
//
//	FILE001  file too large          ErrFileTooLarge
//	FILE002  invalid csv             "invalid csv"
//	FILE003  encoding error          "encoding error"
//	FILE004  no file                 "no file provided"
//	FILE005  empty file              "empty file"
//
// # Import (IMP001-IMP004)
//
//	IMP001  system busy              ErrTooManyImports
//	IMP002  cancelled                ErrCanceled, context.Canceled
//	IMP003  timed out                context.DeadlineExceeded
//	IMP004  exec disabled            ErrExecDisabled
//
// # Table (TBL001)
//
//	TBL001  table not found          "table not found"
//
// # Rate limiting (RATE001)
//
//	RATE001 too many requests        "rate limit"
//
// ERR000 is the fallback; the technical error is in the logs.
//
// Sentinels are matched with errors.Is before any pattern. Patterns are
// matched case-insensitively with strings.Contains, first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/modreports/internal/storage"
)

// UserMessage is a user-facing error with a suggested action and a code for
// support reference.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

// Deadline before cancel: an ErrCanceled import error may wrap either.
var sentinelMessages = []sentinelMessage{
	{ErrFileTooLarge, UserMessage{"File exceeds the maximum import size", "Split the file into smaller chunks", "FILE001"}},
	{ErrTooManyImports, UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP001"}},
	{context.DeadlineExceeded, UserMessage{"Import timed out", "Try a smaller file or try again later", "IMP003"}},
	{ErrCanceled, UserMessage{"Import was cancelled", "Start a new import when ready", "IMP002"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "IMP002"}},
	{ErrExecDisabled, UserMessage{"Raw statements are disabled on this server", "Ask an administrator to set EXEC_ENABLED", "IMP004"}},
	{storage.ErrBusy, UserMessage{"The database is locked by another import", "Nothing was saved. Retry the import in a moment", "DB008"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Constraints
	{"duplicate key", UserMessage{"A report with this ID already exists", "Review the skipped rows for duplicates", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your CSV", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Review your data for duplicate key values", "DB002"}},
	{"foreign key constraint", UserMessage{"Referenced record does not exist", "Load the referenced records first", "DB003"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist", "Load the referenced records first", "DB003"}},

	// Connectivity
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// Source file
	{"invalid csv", UserMessage{"File is not a valid CSV", "Ensure file is comma-separated with consistent columns", "FILE002"}},
	{"encoding error", UserMessage{"File encoding is not supported", "Save the file as UTF-8 or set IMPORT_SOURCE_ENCODING", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to import", "FILE004"}},
	{"empty file", UserMessage{"The file is empty", "Please import a CSV file with a header line", "FILE005"}},

	{"table not found", UserMessage{"Reports table not found", "Verify IMPORT_TABLE and that the table exists", "TBL001"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user message. A nil error maps
// to the zero UserMessage; an unknown one to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
