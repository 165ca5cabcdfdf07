package scrape

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"insider-tracker/internal/types"
)

// Column positions in the source table. Performance columns past the
// value column are optional and detected purely by cell count.
const (
	colFlag = iota
	colFilingDate
	colTradeDate
	colTicker
	colCompany
	colInsider
	colTitle
	colTradeType
	colPrice
	colQuantity
	colOwned
	colDeltaOwn
	colValue
	colPerf1D
	colPerf1W
	colPerf1M
	colPerf6M
)

var (
	tickerPattern     = regexp.MustCompile(`^[A-Z0-9]+$`)
	filingDatePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s*(\d{2}:\d{2}:\d{2})?`)
	tradeDatePattern  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// NormalizeRow maps one extracted cell tuple to a TradeRecord. The second
// return value is false when the row has no resolvable ticker or filing
// date; such rows are rejected, not errored.
func NormalizeRow(cells []string, defaultType types.TradeType, category string) (types.TradeRecord, bool) {
	if len(cells) < minCells {
		return types.TradeRecord{}, false
	}

	ticker := extractTicker(cells[colTicker])
	if ticker == "" {
		return types.TradeRecord{}, false
	}

	filingDate, ok := parseFilingDate(CleanText(cells[colFilingDate]))
	if !ok {
		return types.TradeRecord{}, false
	}

	rec := types.TradeRecord{
		FilingDate:       filingDate,
		TradeDate:        parseTradeDate(CleanText(cells[colTradeDate]), filingDate),
		Ticker:           ticker,
		CompanyName:      companyOrTicker(AnchorText(cells[colCompany]), ticker),
		InsiderName:      insiderOrUnknown(AnchorText(cells[colInsider])),
		InsiderTitle:     CleanText(cells[colTitle]),
		TradeType:        resolveTradeType(CleanText(cells[colTradeType]), defaultType),
		Price:            parseNumber(CleanText(cells[colPrice])),
		Quantity:         magnitudeInt(parseInteger(CleanText(cells[colQuantity]))),
		SharesOwnedAfter: parseInteger(CleanText(cells[colOwned])),
		DeltaOwn:         CleanText(cells[colDeltaOwn]),
		Value:            magnitudeFloat(parseNumber(CleanText(cells[colValue]))),
		FilingFlag:       parseFilingFlag(CleanText(cells[colFlag])),
		SourceCategory:   category,
	}

	// Trailing performance columns are optional-by-position: presence is
	// decided by total cell count, never by label.
	if len(cells) > colPerf1D {
		rec.Perf1D = parsePercentage(CleanText(cells[colPerf1D]))
	}
	if len(cells) > colPerf1W {
		rec.Perf1W = parsePercentage(CleanText(cells[colPerf1W]))
	}
	if len(cells) > colPerf1M {
		rec.Perf1M = parsePercentage(CleanText(cells[colPerf1M]))
	}
	if len(cells) > colPerf6M {
		rec.Perf6M = parsePercentage(CleanText(cells[colPerf6M]))
	}

	return rec, true
}

// extractTicker pulls the anchor text from the ticker cell. The source
// wraps tickers as <b><a href=...>TICK</a></b>; anything that is not
// upper-case alphanumeric invalidates the row.
func extractTicker(cellHTML string) string {
	ticker := strings.ToUpper(AnchorText(cellHTML))
	if !tickerPattern.MatchString(ticker) {
		return ""
	}
	return ticker
}

// companyOrTicker is the named default-resolution step for the company
// column: a missing company name displays as the ticker downstream.
func companyOrTicker(name, ticker string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ticker
	}
	return name
}

// insiderOrUnknown is the named default-resolution step for the insider
// column: the literal "Unknown" is load-bearing for display.
func insiderOrUnknown(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unknown"
	}
	return name
}

// resolveTradeType inspects the free-text transaction description. An
// explicit "Sale" or "Purchase" always wins over the category default.
func resolveTradeType(description string, defaultType types.TradeType) types.TradeType {
	if strings.Contains(description, "Sale") {
		return types.TradeSale
	}
	if strings.Contains(description, "Purchase") {
		return types.TradePurchase
	}
	return defaultType
}

func parseFilingDate(text string) (time.Time, bool) {
	m := filingDatePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	clock := m[2]
	if clock == "" {
		clock = "00:00:00"
	}
	t, err := time.Parse("2006-01-02 15:04:05", m[1]+" "+clock)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseTradeDate falls back to the filing date's calendar day when the
// trade date cell is absent or malformed.
func parseTradeDate(text string, filingDate time.Time) time.Time {
	if m := tradeDatePattern.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t
		}
	}
	return filingDate.Truncate(24 * time.Hour)
}

func parseFilingFlag(text string) types.FilingFlag {
	switch types.FilingFlag(text) {
	case types.FlagAmended, types.FlagDerivative, types.FlagMultiple:
		return types.FilingFlag(text)
	}
	return ""
}

var numberStrip = strings.NewReplacer("$", "", ",", "", "+", "", " ", "")

// parseNumber coerces currency-formatted text to a float. Parse failure
// yields nil, never zero: downstream must treat nil as "unknown".
func parseNumber(text string) *float64 {
	clean := numberStrip.Replace(text)
	if clean == "" {
		return nil
	}
	n, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil
	}
	return &n
}

// parseInteger coerces thousands-separated text to an integer, accepting
// a trailing decimal fraction by truncation.
func parseInteger(text string) *int64 {
	clean := numberStrip.Replace(text)
	if clean == "" {
		return nil
	}
	if n, err := strconv.ParseInt(clean, 10, 64); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil
	}
	n := int64(f)
	return &n
}

var percentStrip = strings.NewReplacer("%", "", ",", "", "+", "", " ", "")

func parsePercentage(text string) *float64 {
	clean := percentStrip.Replace(text)
	if clean == "" {
		return nil
	}
	n, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil
	}
	return &n
}

// magnitudeInt drops the sign and substitutes zero for unknown: quantity
// participates in the natural key and must never be NULL there.
func magnitudeInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	if *n < 0 {
		return -*n
	}
	return *n
}

func magnitudeFloat(n *float64) float64 {
	if n == nil {
		return 0
	}
	return math.Abs(*n)
}
