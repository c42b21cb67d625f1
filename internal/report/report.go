// Package report defines the moderation report record and the helpers that
// derive its key fields from the platform identifier.
package report

// Report is one imported statement of reasons.
//
// Every field is optional text. A nil pointer means the value is absent
// (NULL in the store), which is distinct from an empty string.
type Report struct {
	UUID                         *string `db:"uuid" json:"uuid"`
	DecisionVisibility           *string `db:"decision_visibility" json:"decision_visibility"`
	DecisionVisibilityOther      *string `db:"decision_visibility_other" json:"decision_visibility_other"`
	EndDateVisibilityRestriction *string `db:"end_date_visibility_restriction" json:"end_date_visibility_restriction"`
	DecisionMonetary             *string `db:"decision_monetary" json:"decision_monetary"`
	DecisionMonetaryOther        *string `db:"decision_monetary_other" json:"decision_monetary_other"`
	EndDateMonetaryRestriction   *string `db:"end_date_monetary_restriction" json:"end_date_monetary_restriction"`
	DecisionProvision            *string `db:"decision_provision" json:"decision_provision"`
	EndDateServiceRestriction    *string `db:"end_date_service_restriction" json:"end_date_service_restriction"`
	DecisionAccount              *string `db:"decision_account" json:"decision_account"`
	EndDateAccountRestriction    *string `db:"end_date_account_restriction" json:"end_date_account_restriction"`
	AccountType                  *string `db:"account_type" json:"account_type"`
	DecisionGround               *string `db:"decision_ground" json:"decision_ground"`
	DecisionGroundReferenceURL   *string `db:"decision_ground_reference_url" json:"decision_ground_reference_url"`
	IllegalContentLegalGround    *string `db:"illegal_content_legal_ground" json:"illegal_content_legal_ground"`
	IncompatibleContentGround    *string `db:"incompatible_content_ground" json:"incompatible_content_ground"`
	IncompatibleContentIllegal   *string `db:"incompatible_content_illegal" json:"incompatible_content_illegal"`
	Category                     *string `db:"category" json:"category"`
	CategoryAddition             *string `db:"category_addition" json:"category_addition"`
	CategorySpecification        *string `db:"category_specification" json:"category_specification"`
	CategorySpecificationOther   *string `db:"category_specification_other" json:"category_specification_other"`
	ContentType                  *string `db:"content_type" json:"content_type"`
	ContentTypeOther             *string `db:"content_type_other" json:"content_type_other"`
	ContentLanguage              *string `db:"content_language" json:"content_language"`
	ContentDate                  *string `db:"content_date" json:"content_date"`
	ApplicationDate              *string `db:"application_date" json:"application_date"`
	SourceType                   *string `db:"source_type" json:"source_type"`
	SourceIdentity               *string `db:"source_identity" json:"source_identity"`
	AutomatedDetection           *string `db:"automated_detection" json:"automated_detection"`
	AutomatedDecision            *string `db:"automated_decision" json:"automated_decision"`
	PlatformName                 *string `db:"platform_name" json:"platform_name"`
	PlatformUID                  *string `db:"platform_uid" json:"platform_uid"`
	CreatedAt                    *string `db:"created_at" json:"created_at"`
	ReportID                     *string `db:"report_id" json:"report_id"`
	TargetID                     *string `db:"target_id" json:"target_id"`
	ReportType                   *string `db:"report_type" json:"report_type"`
}

// Table is the store table holding reports.
const Table = "reports"

// Column names with special meaning to the importer.
const (
	ColPlatformUID = "platform_uid"
	ColReportID    = "report_id"
	ColTargetID    = "target_id"
	ColReportType  = "report_type"
	ColCreatedAt   = "created_at"
)

// Columns lists the record's column names in declaration order.
// Read queries select exactly these columns so extra store columns never
// break struct scanning.
var Columns = []string{
	"uuid",
	"decision_visibility",
	"decision_visibility_other",
	"end_date_visibility_restriction",
	"decision_monetary",
	"decision_monetary_other",
	"end_date_monetary_restriction",
	"decision_provision",
	"end_date_service_restriction",
	"decision_account",
	"end_date_account_restriction",
	"account_type",
	"decision_ground",
	"decision_ground_reference_url",
	"illegal_content_legal_ground",
	"incompatible_content_ground",
	"incompatible_content_illegal",
	"category",
	"category_addition",
	"category_specification",
	"category_specification_other",
	"content_type",
	"content_type_other",
	"content_language",
	"content_date",
	"application_date",
	"source_type",
	"source_identity",
	"automated_detection",
	"automated_decision",
	"platform_name",
	ColPlatformUID,
	ColCreatedAt,
	ColReportID,
	ColTargetID,
	ColReportType,
}

// Values returns the report's fields in Columns order.
func (r *Report) Values() []*string {
	return []*string{
		r.UUID,
		r.DecisionVisibility,
		r.DecisionVisibilityOther,
		r.EndDateVisibilityRestriction,
		r.DecisionMonetary,
		r.DecisionMonetaryOther,
		r.EndDateMonetaryRestriction,
		r.DecisionProvision,
		r.EndDateServiceRestriction,
		r.DecisionAccount,
		r.EndDateAccountRestriction,
		r.AccountType,
		r.DecisionGround,
		r.DecisionGroundReferenceURL,
		r.IllegalContentLegalGround,
		r.IncompatibleContentGround,
		r.IncompatibleContentIllegal,
		r.Category,
		r.CategoryAddition,
		r.CategorySpecification,
		r.CategorySpecificationOther,
		r.ContentType,
		r.ContentTypeOther,
		r.ContentLanguage,
		r.ContentDate,
		r.ApplicationDate,
		r.SourceType,
		r.SourceIdentity,
		r.AutomatedDetection,
		r.AutomatedDecision,
		r.PlatformName,
		r.PlatformUID,
		r.CreatedAt,
		r.ReportID,
		r.TargetID,
		r.ReportType,
	}
}

// Get returns the value of the named column and whether the column exists.
func (r *Report) Get(column string) (*string, bool) {
	for i, c := range Columns {
		if c == column {
			return r.Values()[i], true
		}
	}
	return nil, false
}
