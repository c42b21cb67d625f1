package core

import "github.com/JonMunkholm/modreports/internal/report"

// MapRecord pairs headers with values positionally, up to the shorter of the
// two. Every paired header maps to a non-nil value.
//
// A present, non-empty platform_uid overwrites report_id, target_id and
// report_type with its decomposition; a malformed identifier sets all three
// to nil. Later duplicate headers win.
func MapRecord(headers, values []string) Row {
	n := min(len(headers), len(values))
	row := make(Row, n+3)

	for i := 0; i < n; i++ {
		v := values[i]
		row[headers[i]] = &v
	}

	if uid, ok := row[report.ColPlatformUID]; ok && *uid != "" {
		keys := report.Decompose(uid)
		row[report.ColReportID] = keys.ReportID
		row[report.ColTargetID] = keys.TargetID
		row[report.ColReportType] = keys.ReportType
	}

	return row
}
