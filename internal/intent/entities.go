package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`010[-.\s]?(\d{3,4})[-.\s]?(\d{4})`)

	// 2024-01, 2024.1, 2024/01, 2024년 1월
	monthPattern = regexp.MustCompile(`(20\d{2})\s*[-./년]\s*(\d{1,2})\s*월?`)

	recentKoPattern = regexp.MustCompile(`최근\s*(\d+)\s*개월`)
	recentEnPattern = regexp.MustCompile(`(?i)last\s+(\d+)\s+months?`)

	// 100000원, 10만원, 1,000,000 KRW — captured with an optional
	// threshold word after the unit
	amountPattern = regexp.MustCompile(`([\d,]+)\s*(만원|원|krw)`)

	// single-letter anonymized carriers like A통신사, plus B사
	literalOperatorPattern = regexp.MustCompile(`[A-Za-z가-힣]통신사|[A-Z]사`)
)

// operatorAliases maps lowercase alias -> canonical operator name
var operatorAliases = map[string]string{
	"kt":      "KT",
	"케이티":     "KT",
	"skt":     "SKT",
	"sk텔레콤":   "SKT",
	"sk 텔레콤":  "SKT",
	"에스케이텔레콤": "SKT",
	"lgu+":    "LGU+",
	"lg u+":   "LGU+",
	"lg유플러스":  "LGU+",
	"엘지유플러스":  "LGU+",
	"mvno":    "MVNO",
	"알뜰폰":     "MVNO",
	"알뜰폰 사업자": "MVNO",
}

// ExtractEntities pulls structured values out of a normalized question
func ExtractEntities(question string) Entities {
	var e Entities

	e.PhoneNumbers = extractPhones(question)
	e.Operators = extractOperators(question)
	e.Months = extractMonths(question)
	e.RecentMonths = extractRecentMonths(question)
	e.AmountMin = extractAmountThreshold(question)
	e.PortType = extractPortType(question)

	lowered := strings.ToLower(question)
	e.CompareOperators = containsAny(lowered, compareKeywords)
	e.WantsFees = containsAny(lowered, []string{"수수료", "fee", "요금 내역"})
	e.WantsDeposits = containsAny(lowered, []string{"예치금", "deposit", "보증금"})

	return e
}

// per-operator breakdown or ranking requests
var compareKeywords = []string{
	"사업자별", "통신사별", "회사별", "비교", "순위",
	"by operator", "per operator", "compare", "ranking",
}

func extractPhones(question string) []string {
	var out []string

	for _, m := range phonePattern.FindAllStringSubmatch(question, -1) {
		normalized := fmt.Sprintf("010-%s-%s", m[1], m[2])

		if !contains(out, normalized) {
			out = append(out, normalized)
		}
	}

	return out
}

func extractOperators(question string) []string {
	lowered := strings.ToLower(question)

	var out []string

	// longer aliases first so "sk텔레콤" wins over a bare "kt" inside it
	for _, alias := range sortedAliasesByLength() {
		if strings.Contains(lowered, alias) {
			canonical := operatorAliases[alias]

			if !contains(out, canonical) {
				out = append(out, canonical)
			}
		}
	}

	for _, literal := range literalOperatorPattern.FindAllString(question, -1) {
		if !contains(out, literal) {
			out = append(out, literal)
		}
	}

	return out
}

var aliasesByLength []string

func sortedAliasesByLength() []string {
	if aliasesByLength != nil {
		return aliasesByLength
	}

	for alias := range operatorAliases {
		aliasesByLength = append(aliasesByLength, alias)
	}

	// insertion sort, longest first; the map is small and this runs once
	for i := 1; i < len(aliasesByLength); i++ {
		for j := i; j > 0 && len(aliasesByLength[j]) > len(aliasesByLength[j-1]); j-- {
			aliasesByLength[j], aliasesByLength[j-1] = aliasesByLength[j-1], aliasesByLength[j]
		}
	}

	return aliasesByLength
}

func extractMonths(question string) []Month {
	var out []Month

	for _, m := range monthPattern.FindAllStringSubmatch(question, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])

		if month < 1 || month > 12 {
			continue
		}

		candidate := Month{Year: year, Month: month}

		dup := false

		for _, existing := range out {
			if existing == candidate {
				dup = true

				break
			}
		}

		if !dup {
			out = append(out, candidate)
		}
	}

	return out
}

func extractRecentMonths(question string) int {
	if m := recentKoPattern.FindStringSubmatch(question); m != nil {
		n, _ := strconv.Atoi(m[1])

		return n
	}

	if m := recentEnPattern.FindStringSubmatch(question); m != nil {
		n, _ := strconv.Atoi(m[1])

		return n
	}

	return 0
}

func extractAmountThreshold(question string) int64 {
	lowered := strings.ToLower(question)

	m := amountPattern.FindStringSubmatch(lowered)
	if m == nil {
		return 0
	}

	digits := strings.ReplaceAll(m[1], ",", "")

	amount, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}

	if m[2] == "만원" {
		amount *= 10000
	}

	// only treat it as a threshold when the question asks for a bound
	if !containsAny(lowered, []string{"이상", "초과", "넘는", "over", "more than", "at least"}) {
		return 0
	}

	return amount
}

func extractPortType(question string) string {
	lowered := strings.ToLower(question)

	switch {
	case containsAny(lowered, []string{"포트인", "port-in", "port in", "portin", "전입", "번호이동 가입"}):
		return PortIn
	case containsAny(lowered, []string{"포트아웃", "port-out", "port out", "portout", "전출", "번호이동 해지"}):
		return PortOut
	default:
		return ""
	}
}
