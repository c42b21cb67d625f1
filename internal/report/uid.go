package report

import "strings"

// uidSeparator delimits the segments of a platform_uid.
const uidSeparator = "-"

// Keys are the fields derived from a platform_uid.
// Either all three are set or all three are nil.
type Keys struct {
	ReportID   *string
	TargetID   *string
	ReportType *string
}

// Valid reports whether the keys were derived from a well-formed identifier.
func (k Keys) Valid() bool {
	return k.ReportID != nil
}

// Decompose splits a platform_uid of the form
// <report_id>-<target_id>-<report_type>[-...] into its key fields.
//
// A nil input, or one with fewer than three segments, yields all-nil keys.
// Segments are returned verbatim and anything after the third is ignored.
func Decompose(uid *string) Keys {
	if uid == nil {
		return Keys{}
	}

	parts := strings.Split(*uid, uidSeparator)
	if len(parts) < 3 {
		return Keys{}
	}

	reportID, targetID, reportType := parts[0], parts[1], parts[2]
	return Keys{
		ReportID:   &reportID,
		TargetID:   &targetID,
		ReportType: &reportType,
	}
}
