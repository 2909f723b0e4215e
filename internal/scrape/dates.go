package scrape

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// eraOffsets map Japanese era names to the offset added to the era year.
var eraOffsets = map[string]int{
	"令和": 2018,
	"平成": 1988,
	"昭和": 1925,
}

// NormalizeDigits converts fullwidth digits to ASCII. Site pages mix the
// two freely.
func NormalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return '0' + (r - '０')
		}
		return r
	}, s)
}

// EraYear converts an era year (令和6) to a western year (2024).
func EraYear(era string, year int) (int, bool) {
	offset, ok := eraOffsets[era]
	if !ok {
		return 0, false
	}
	return offset + year, true
}

// YearMonth is a publication month.
type YearMonth struct {
	Year  int
	Month int
}

// Index returns the absolute month index for ordering.
func (ym YearMonth) Index() int {
	return ym.Year*12 + ym.Month - 1
}

var (
	kanjiDateRe = regexp.MustCompile(`(\d{4})年\s*(\d{1,2})月`)
	eraDateRe   = regexp.MustCompile(`(令和|平成|昭和)\s*(\d{1,2})年\s*(\d{1,2})月`)
	slashDateRe = regexp.MustCompile(`(\d{4})/(\d{1,2})`)
	plainDateRe = regexp.MustCompile(`(19\d{2}|20\d{2})(0[1-9]|1[0-2])`)
)

// ExtractYearMonth finds a publication year/month in link text or a
// filename. Recognized forms, in priority order: 令和N年M月, YYYY年M月,
// YYYY/MM, YYYYMM. Fullwidth digits are normalized first.
func ExtractYearMonth(s string) (YearMonth, bool) {
	s = NormalizeDigits(s)

	if m := eraDateRe.FindStringSubmatch(s); m != nil {
		eraYear, _ := strconv.Atoi(m[2])
		month, _ := strconv.Atoi(m[3])
		if year, ok := EraYear(m[1], eraYear); ok && validMonth(month) {
			return YearMonth{Year: year, Month: month}, true
		}
	}
	if m := kanjiDateRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if validMonth(month) {
			return YearMonth{Year: year, Month: month}, true
		}
	}
	if m := slashDateRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if validMonth(month) {
			return YearMonth{Year: year, Month: month}, true
		}
	}
	if m := plainDateRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return YearMonth{Year: year, Month: month}, true
	}
	return YearMonth{}, false
}

// ParseTerm recognizes semester keywords: 前期 is term 0, 後期 term 1.
func ParseTerm(s string) (int, bool) {
	if strings.Contains(s, "前期") {
		return 0, true
	}
	if strings.Contains(s, "後期") {
		return 1, true
	}
	return 0, false
}

// AcademicYear returns the school year a date falls in: the school year
// starts in April, so January through March belong to the previous
// calendar year.
func AcademicYear(t time.Time) int {
	if t.Month() >= time.April {
		return t.Year()
	}
	return t.Year() - 1
}

// SortByUpcoming orders links so the one published for the upcoming
// month comes first, then the current month, then the rest by proximity
// (later months winning ties). Links without a recognizable date sort
// last in original order.
func SortByUpcoming(links []Link, now time.Time) []Link {
	next := YearMonth{Year: now.Year(), Month: int(now.Month())}.Index() + 1

	type scored struct {
		link  Link
		idx   int
		dated bool
		pos   int
	}
	items := make([]scored, len(links))
	for i, l := range links {
		ym, ok := ExtractYearMonth(l.Text + " " + l.URL)
		items[i] = scored{link: l, idx: ym.Index(), dated: ok, pos: i}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.dated != b.dated {
			return a.dated
		}
		if !a.dated {
			return a.pos < b.pos
		}
		da, db := distance(a.idx, next), distance(b.idx, next)
		if da != db {
			return da < db
		}
		return a.idx > b.idx
	})

	out := make([]Link, len(items))
	for i, it := range items {
		out[i] = it.link
	}
	return out
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func validMonth(m int) bool {
	return m >= 1 && m <= 12
}
