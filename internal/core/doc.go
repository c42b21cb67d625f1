// Package core loads moderation-report CSV files into the reports table and
// serves them back.
//
// It is independent of transport: the HTTP API and the CLI both go through
// [Service].
//
// # Import
//
// [Importer.Import] runs one source through a fixed sequence:
//
//  1. read the source fully, decoded to UTF-8 ([ReadSource])
//  2. read the live column list of the destination table
//  3. begin a transaction
//  4. parse the header line
//  5. for each data row: map it ([MapRecord]), bind it to the insert
//     ([BuildInsert]) and insert it
//  6. commit
//
// Failures in steps 1-4 and 6, and a cancelled context, are fatal: the run
// returns an [*ImportError] and nothing is visible in the store. A row that
// fails to parse or insert becomes a [RowError] and the run goes on.
//
// Only columns that exist in the table are written. Headers the table does
// not know are dropped; columns the file lacks are NULL. A non-empty
// platform_uid overrides report_id, target_id and report_type.
//
// # Errors
//
// Fatal kinds are matched with errors.Is: [ErrIO], [ErrSchema],
// [ErrTransaction], [ErrHeader] and [ErrCanceled]. [MapError] turns any
// error into a coded [UserMessage].
package core
