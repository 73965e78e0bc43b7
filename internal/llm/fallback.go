package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/npsettle/portquery/internal/intent"
)

// FallbackService builds queries from rule-based templates when no LLM
// provider is reachable. Templates target DuckDB against the default
// settlement schema.
type FallbackService struct{}

// NewFallbackService creates a new fallback service
func NewFallbackService() *FallbackService {
	return &FallbackService{}
}

// Configure is a no-op for the fallback service
func (f *FallbackService) Configure(config Config) error {
	return nil
}

// GenerateQuery builds a deterministic query from the classified intent
func (f *FallbackService) GenerateQuery(ctx context.Context, req Request) (*QueryResponse, error) {
	var (
		sql         string
		explanation string
	)

	switch req.Intent.Kind {
	case intent.KindPointLookup:
		sql, explanation = f.pointLookupQuery(req.Intent.Entities)
	case intent.KindAggregateTrend:
		sql, explanation = f.aggregateQuery(req.Intent.Entities)
	default:
		return nil, fmt.Errorf("cannot build a template query for kind %s", req.Intent.Kind)
	}

	return &QueryResponse{
		SQL:         sql,
		Explanation: explanation,
		Confidence:  0.4, // rule-based templates carry low confidence
		Reasoning:   "Generated using rule-based fallback templates",
	}, nil
}

func (f *FallbackService) pointLookupQuery(e intent.Entities) (string, string) {
	cols := []string{
		"c.customer_id", "c.phone_number", "c.operator_name",
		"s.settlement_id", "s.port_type", "s.settlement_amount",
		"s.year", "s.month", "s.settled_at",
	}
	joins := []string{
		"JOIN settlement_history s ON s.customer_id = c.customer_id",
	}

	if e.WantsFees {
		cols = append(cols, "f.fee_type", "f.fee_amount")
		joins = append(joins, "JOIN fee_detail f ON f.settlement_id = s.settlement_id")
	}

	if e.WantsDeposits {
		cols = append(cols, "d.deposit_amount", "d.deposit_date")
		joins = append(joins, "JOIN deposit_ledger d ON d.customer_id = c.customer_id")
	}

	where := []string{}
	if len(e.PhoneNumbers) > 0 {
		where = append(where, fmt.Sprintf("c.phone_number = %s", quote(e.PhoneNumbers[0])))
	}

	if len(e.Operators) > 0 {
		where = append(where, fmt.Sprintf("s.operator_name = %s", quote(e.Operators[0])))
	}

	if e.PortType != "" {
		where = append(where, fmt.Sprintf("s.port_type = %s", quote(e.PortType)))
	}

	if e.AmountMin > 0 {
		where = append(where, fmt.Sprintf("s.settlement_amount >= %d", e.AmountMin))
	}

	for _, m := range e.Months {
		where = append(where, fmt.Sprintf("s.year = %d AND s.month = %d", m.Year, m.Month))

		break // a point lookup filters on at most one month
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s\nFROM customer c\n%s\n",
		strings.Join(cols, ", "), strings.Join(joins, "\n"))

	if len(where) > 0 {
		fmt.Fprintf(&sb, "WHERE %s\n", strings.Join(where, " AND "))
	}

	sb.WriteString("ORDER BY s.settled_at DESC")

	return sb.String(), "Looks up settlement records for the matched subscriber"
}

func (f *FallbackService) aggregateQuery(e intent.Entities) (string, string) {
	if e.WantsDeposits {
		return f.depositAggregateQuery(e)
	}

	if e.CompareOperators {
		return f.operatorComparisonQuery(e)
	}

	where := []string{}

	if len(e.Operators) > 0 {
		where = append(where, fmt.Sprintf("operator_name = %s", quote(e.Operators[0])))
	}

	if e.PortType != "" {
		where = append(where, fmt.Sprintf("port_type = %s", quote(e.PortType)))
	}

	if e.AmountMin > 0 {
		where = append(where, fmt.Sprintf("settlement_amount >= %d", e.AmountMin))
	}

	if e.RecentMonths > 0 {
		where = append(where,
			fmt.Sprintf("settled_at >= current_date - INTERVAL %d MONTH", e.RecentMonths))
	}

	// A single named month collapses to a plain total for that month
	if len(e.Months) == 1 && e.RecentMonths == 0 {
		m := e.Months[0]
		where = append(where, fmt.Sprintf("year = %d", m.Year), fmt.Sprintf("month = %d", m.Month))

		sql := fmt.Sprintf(
			"SELECT SUM(settlement_amount) AS total_amount, COUNT(*) AS settlement_count\nFROM settlement_history\nWHERE %s",
			strings.Join(where, " AND "))

		return sql, fmt.Sprintf("Totals settlements for %04d-%02d", m.Year, m.Month)
	}

	var sb strings.Builder

	sb.WriteString("SELECT year, month,\n")
	sb.WriteString("       SUM(settlement_amount) AS total_amount,\n")
	sb.WriteString("       COUNT(*) AS settlement_count,\n")
	sb.WriteString("       ROUND(100.0 * (SUM(settlement_amount) - LAG(SUM(settlement_amount)) OVER (ORDER BY year, month))\n")
	sb.WriteString("             / NULLIF(LAG(SUM(settlement_amount)) OVER (ORDER BY year, month), 0), 2) AS growth_rate_pct\n")
	sb.WriteString("FROM settlement_history\n")

	if len(where) > 0 {
		fmt.Fprintf(&sb, "WHERE %s\n", strings.Join(where, " AND "))
	}

	sb.WriteString("GROUP BY year, month\nORDER BY year, month")

	return sb.String(), "Monthly settlement totals with period-over-period growth"
}

// operatorComparisonQuery ranks operators against each other instead of
// producing a time series. Port-in and port-out amounts are broken out so
// the two settlement directions stay comparable per operator.
func (f *FallbackService) operatorComparisonQuery(e intent.Entities) (string, string) {
	where := []string{}

	if len(e.Months) == 1 {
		m := e.Months[0]
		where = append(where, fmt.Sprintf("year = %d", m.Year), fmt.Sprintf("month = %d", m.Month))
	}

	if e.RecentMonths > 0 {
		where = append(where,
			fmt.Sprintf("settled_at >= current_date - INTERVAL %d MONTH", e.RecentMonths))
	}

	if e.AmountMin > 0 {
		where = append(where, fmt.Sprintf("settlement_amount >= %d", e.AmountMin))
	}

	var sb strings.Builder

	sb.WriteString("WITH operator_summary AS (\n")
	sb.WriteString("    SELECT operator_name,\n")
	sb.WriteString("           SUM(CASE WHEN port_type = 'PORT_IN' THEN settlement_amount ELSE 0 END) AS port_in_amount,\n")
	sb.WriteString("           SUM(CASE WHEN port_type = 'PORT_OUT' THEN settlement_amount ELSE 0 END) AS port_out_amount,\n")
	sb.WriteString("           SUM(settlement_amount) AS total_amount,\n")
	sb.WriteString("           ROUND(AVG(settlement_amount), 0) AS avg_amount,\n")
	sb.WriteString("           COUNT(*) AS settlement_count\n")
	sb.WriteString("    FROM settlement_history\n")

	if len(where) > 0 {
		fmt.Fprintf(&sb, "    WHERE %s\n", strings.Join(where, " AND "))
	}

	sb.WriteString("    GROUP BY operator_name\n")
	sb.WriteString(")\n")
	sb.WriteString("SELECT operator_name, port_in_amount, port_out_amount, total_amount,\n")
	sb.WriteString("       avg_amount, settlement_count,\n")
	sb.WriteString("       RANK() OVER (ORDER BY total_amount DESC) AS amount_rank\n")
	sb.WriteString("FROM operator_summary\n")
	sb.WriteString("ORDER BY amount_rank")

	return sb.String(), "Per-operator settlement totals with port-in/port-out breakdown and ranking"
}

func (f *FallbackService) depositAggregateQuery(e intent.Entities) (string, string) {
	where := []string{}

	if len(e.Months) == 1 {
		m := e.Months[0]
		where = append(where,
			fmt.Sprintf("date_part('year', d.deposit_date) = %d", m.Year),
			fmt.Sprintf("date_part('month', d.deposit_date) = %d", m.Month))
	}

	if e.RecentMonths > 0 {
		where = append(where,
			fmt.Sprintf("d.deposit_date >= current_date - INTERVAL %d MONTH", e.RecentMonths))
	}

	var sb strings.Builder

	sb.WriteString("SELECT strftime(d.deposit_date, '%Y-%m') AS deposit_month,\n")
	sb.WriteString("       SUM(d.deposit_amount) AS total_deposit,\n")
	sb.WriteString("       COUNT(*) AS movement_count\n")
	sb.WriteString("FROM deposit_ledger d\n")

	if len(e.Operators) > 0 {
		sb.WriteString("JOIN customer c ON c.customer_id = d.customer_id\n")

		where = append(where, fmt.Sprintf("c.operator_name = %s", quote(e.Operators[0])))
	}

	if len(where) > 0 {
		fmt.Fprintf(&sb, "WHERE %s\n", strings.Join(where, " AND "))
	}

	sb.WriteString("GROUP BY deposit_month\nORDER BY deposit_month")

	return sb.String(), "Monthly deposit totals from the deposit ledger"
}

// quote escapes and single-quotes a SQL string literal
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
