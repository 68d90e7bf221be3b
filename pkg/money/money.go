// Package money formats and parses New Taiwan dollar amounts in chat text.
package money

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// amountPattern requires a non-alphanumeric boundary before the amount so
// that model numbers like "PS5" are not read as prices. Group 1 is the whole
// amount phrase, group 2 the number.
var amountPattern = regexp.MustCompile(`(?i)(?:^|[^a-z0-9.,])((?:(?:nt\$|\$)\s*)?([0-9][0-9,]*(?:\.[0-9]+)?)(?:\s*(?:元|塊|twd|ntd))?)`)

// FormatTWD renders v as "NT$1,280", keeping cents only when present.
func FormatTWD(v float64) string {
	if v == math.Trunc(v) {
		return printer.Sprintf("NT$%d", int64(v))
	}
	return printer.Sprintf("NT$%.2f", v)
}

// ParseAmount reads an amount such as "1,280", "NT$1280" or "350元".
func ParseAmount(s string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// LastAmount finds the last amount in text and returns it with the text
// before it.
func LastAmount(text string) (amount float64, before string, ok bool) {
	locs := amountPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return 0, text, false
	}
	loc := locs[len(locs)-1]
	v, err := strconv.ParseFloat(strings.ReplaceAll(text[loc[4]:loc[5]], ",", ""), 64)
	if err != nil {
		return 0, text, false
	}
	return v, text[:loc[2]], true
}

// CutAmount finds the first amount in text and returns it with the text
// around it.
func CutAmount(text string) (amount float64, before, after string, ok bool) {
	loc := amountPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return 0, text, "", false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(text[loc[4]:loc[5]], ",", ""), 64)
	if err != nil {
		return 0, text, "", false
	}
	return v, text[:loc[2]], text[loc[3]:], true
}
