package intent

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Kind is the coarse classification of a user question
type Kind string

const (
	// KindPointLookup asks about a specific subscriber or settlement record
	KindPointLookup Kind = "point_lookup"
	// KindAggregateTrend asks for totals, comparisons, or time-series trends
	KindAggregateTrend Kind = "aggregate_trend"
	// KindUnknown means the question could not be classified; the caller
	// should ask for clarification instead of synthesizing a query
	KindUnknown Kind = "unknown"
)

// Port type values as stored in settlement_history.port_type
const (
	PortIn  = "PORT_IN"
	PortOut = "PORT_OUT"
)

// Month is a calendar month extracted from the question
type Month struct {
	Year  int
	Month int
}

// Entities are the structured values pulled out of the question text.
// Extraction is best-effort; missing entities are zero values.
type Entities struct {
	PhoneNumbers []string // normalized to 010-XXXX-XXXX
	Operators    []string // canonical operator names
	Months       []Month
	RecentMonths int    // "최근 3개월" / "last 3 months"
	AmountMin    int64  // threshold in KRW, 0 when absent
	PortType     string // PORT_IN, PORT_OUT, or ""

	// CompareOperators is set when the question asks for a per-operator
	// breakdown or ranking rather than a time series
	CompareOperators bool

	WantsFees     bool // fee_detail breakdown requested
	WantsDeposits bool // deposit_ledger requested
}

// Intent is the classified question
type Intent struct {
	Kind     Kind
	Entities Entities
	Question string // normalized plain-text question
}

// Classify normalizes the input text and classifies it. Pasted email bodies
// may be HTML; those are converted to markdown before keyword matching.
// Ambiguous input yields KindUnknown with whatever entities were found,
// never an error.
func Classify(text string) Intent {
	question := normalize(text)
	entities := ExtractEntities(question)

	return Intent{
		Kind:     classifyKind(question, entities),
		Entities: entities,
		Question: question,
	}
}

func normalize(text string) string {
	if looksLikeHTML(text) {
		if md, err := htmltomarkdown.ConvertString(text); err == nil {
			text = md
		}
	}

	return strings.TrimSpace(text)
}

func looksLikeHTML(text string) bool {
	lowered := strings.ToLower(text)

	for _, tag := range []string{"<html", "<body", "<div", "<p>", "<br", "<table", "<td"} {
		if strings.Contains(lowered, tag) {
			return true
		}
	}

	return false
}

// keyword groups for classification; Korean terms come from the settlement
// team's phrasing conventions
var (
	trendKeywords = []string{
		"월별", "추이", "트렌드", "증감", "성장률", "변화",
		"monthly", "trend", "growth", "over time",
	}
	aggregateKeywords = []string{
		"합계", "총", "총액", "평균", "건수", "비교", "사업자별", "통신사별", "현황",
		"sum", "total", "average", "count", "compare", "by operator", "breakdown",
	}
	lookupKeywords = []string{
		"고객", "가입자", "조회", "내역", "이력",
		"customer", "subscriber", "history", "record", "lookup",
	}
)

func classifyKind(question string, entities Entities) Kind {
	lowered := strings.ToLower(question)

	// A concrete phone number always means a record lookup
	if len(entities.PhoneNumbers) > 0 {
		return KindPointLookup
	}

	if containsAny(lowered, trendKeywords) {
		return KindAggregateTrend
	}

	hasPeriod := len(entities.Months) > 0 || entities.RecentMonths > 0

	if containsAny(lowered, aggregateKeywords) {
		return KindAggregateTrend
	}

	if hasPeriod && (len(entities.Operators) > 0 || entities.PortType != "" ||
		entities.WantsDeposits) {
		return KindAggregateTrend
	}

	if containsAny(lowered, lookupKeywords) &&
		(len(entities.Operators) > 0 || entities.AmountMin > 0 || hasPeriod) {
		return KindPointLookup
	}

	return KindUnknown
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}

	return false
}

// Tables returns the schema tables this intent touches, for prompt grounding
func (in Intent) Tables() []string {
	tables := []string{"settlement_history"}

	if len(in.Entities.PhoneNumbers) > 0 || in.Kind == KindPointLookup {
		tables = append(tables, "customer")
	}

	if in.Entities.WantsFees {
		tables = append(tables, "fee_detail")
	}

	if in.Entities.WantsDeposits {
		tables = append(tables, "deposit_ledger")

		if !contains(tables, "customer") {
			tables = append(tables, "customer")
		}
	}

	return tables
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}

	return false
}
