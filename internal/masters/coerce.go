package masters

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

var hundred = decimal.NewFromInt(100)

// foldWidth turns full-width digits and signs into their ASCII forms.
func foldWidth(s string) string {
	return strings.TrimSpace(width.Narrow.String(s))
}

// parseInt folds width and parses a base-10 integer. A thousands separator
// is tolerated.
func parseInt(s string) (int, bool) {
	s = strings.ReplaceAll(foldWidth(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseRate converts percentage text ("10%", "１０％", "8") into a decimal
// fraction. Text that is not a number yields 0.
func ParseRate(s string) float64 {
	s = foldWidth(s)
	s = strings.NewReplacer("%", "", "％", "").Replace(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Div(hundred).Float64()
	return f
}

// ParseRounding maps a rounding label to round, ceil or floor (the default).
func ParseRounding(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "round", "四捨五入":
		return RoundingRound
	case "ceil", "切り上げ", "切上げ":
		return RoundingCeil
	default:
		return RoundingFloor
	}
}

// MethodForName reports inclusive when the tax name mentions 内税.
func MethodForName(name string) string {
	if strings.Contains(name, "内税") {
		return MethodInclusive
	}
	return MethodExclusive
}

func parseFlag(s string) bool {
	switch strings.ToLower(foldWidth(s)) {
	case "1", "true", "yes", "y", "する", "有", "あり", "○":
		return true
	default:
		return false
	}
}

var dateLayouts = []string{
	"2006/01/02",
	"2006-01-02",
	"20060102",
	"2006/1/2",
	"2006.01.02",
	time.RFC3339,
}

func parseDate(s string) (time.Time, bool) {
	s = foldWidth(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, jst); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var jst = time.FixedZone("Asia/Tokyo", 9*60*60)

func between(lo, hi int) func(int) bool {
	return func(v int) bool { return v >= lo && v <= hi }
}

func oneOf(values ...int) func(int) bool {
	return func(v int) bool {
		for _, allowed := range values {
			if v == allowed {
				return true
			}
		}
		return false
	}
}

func anyInt(int) bool { return true }
