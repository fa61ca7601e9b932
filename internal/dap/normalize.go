package dap

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	moneyResidue  = regexp.MustCompile(`[^0-9,.\-]`)
	plainDecimal  = regexp.MustCompile(`^-?\d+\.\d{2}$`)
	dateBR        = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	dateISO       = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	digitsOnly    = regexp.MustCompile(`[^0-9]`)
	dateTokenBR   = regexp.MustCompile(`\b(\d{2})[/-](\d{2})[/-](\d{4})\b`)
	competencyTok = regexp.MustCompile(`\b(\d{1,2})\s*/\s*(\d{4})\b`)
)

// ParseMoney converts a Brazilian formatted amount ("R$ 1.234,56") to a number.
// A value with nothing numeric left after cleaning yields nil, never zero.
func ParseMoney(s string) *float64 {
	clean := moneyResidue.ReplaceAllString(strings.TrimSpace(s), "")
	clean = strings.Trim(clean, ".,")
	if clean == "" || clean == "-" {
		return nil
	}
	negative := strings.HasPrefix(clean, "-")
	clean = strings.ReplaceAll(clean, "-", "")

	// "1234.56" from a structured source is already dot-decimal.
	if strings.Contains(clean, ",") || !plainDecimal.MatchString(clean) {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	}
	if strings.Count(clean, ".") > 1 {
		return nil
	}

	val, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil
	}
	if negative {
		val = -val
	}
	return &val
}

// FormatMoney renders v as "1.234,56".
func FormatMoney(v float64) string {
	negative := v < 0
	cents := int64(math.Round(math.Abs(v) * 100))
	intPart := strconv.FormatInt(cents/100, 10)

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := fmt.Sprintf("%s,%02d", b.String(), cents%100)
	if negative {
		return "-" + out
	}
	return out
}

// ParseInt reads the digits of s; nil when there are none.
func ParseInt(s string) *int {
	d := digitsOnly.ReplaceAllString(s, "")
	if d == "" {
		return nil
	}
	v, err := strconv.Atoi(d)
	if err != nil {
		return nil
	}
	return &v
}

// NormalizeDate accepts DD/MM/YYYY, DD-MM-YYYY or an ISO date and returns YYYY-MM-DD.
func NormalizeDate(s string) *string {
	s = strings.TrimSpace(s)
	var day, month, year string
	if m := dateBR.FindStringSubmatch(s); m != nil {
		day, month, year = m[1], m[2], m[3]
	} else if m := dateISO.FindStringSubmatch(s); m != nil {
		year, month, day = m[1], m[2], m[3]
	} else {
		return nil
	}

	d, _ := strconv.Atoi(day)
	mo, _ := strconv.Atoi(month)
	y, _ := strconv.Atoi(year)
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != mo || t.Year() != y {
		return nil
	}
	iso := t.Format(time.DateOnly)
	return &iso
}

// findDateToken returns the first DD/MM/YYYY shaped token in s.
func findDateToken(s string) string {
	return dateTokenBR.FindString(s)
}
