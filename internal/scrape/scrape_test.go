package scrape

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestParsePDFLinks(t *testing.T) {
	page := `<html><body>
		<a href="/docs/menu_202604.pdf">2026年4月 寮食メニュー</a>
		<a href="https://cdn.school.example.jp/tt.PDF">時間割</a>
		<a href="/news/notice.html">お知らせ</a>
		<a href="files/rules.pdf?rev=3"><span>学生</span>規則</a>
	</body></html>`

	base, _ := url.Parse("https://school.example.jp/campus/")
	links, err := ParsePDFLinks(strings.NewReader(page), base)
	if err != nil {
		t.Fatalf("ParsePDFLinks() error = %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("got %d links, want 3: %+v", len(links), links)
	}
	if links[0].URL != "https://school.example.jp/docs/menu_202604.pdf" {
		t.Errorf("links[0].URL = %q", links[0].URL)
	}
	if links[0].Text != "2026年4月 寮食メニュー" {
		t.Errorf("links[0].Text = %q", links[0].Text)
	}
	if links[1].URL != "https://cdn.school.example.jp/tt.PDF" {
		t.Errorf("links[1].URL = %q", links[1].URL)
	}
	if links[2].URL != "https://school.example.jp/campus/files/rules.pdf?rev=3" {
		t.Errorf("links[2].URL = %q", links[2].URL)
	}
	if links[2].Text != "学生規則" {
		t.Errorf("links[2].Text = %q", links[2].Text)
	}
}

func TestExtractYearMonth(t *testing.T) {
	tests := []struct {
		in   string
		want YearMonth
		ok   bool
	}{
		{"2026年4月 メニュー", YearMonth{2026, 4}, true},
		{"２０２６年１０月", YearMonth{2026, 10}, true},
		{"令和8年4月行事予定", YearMonth{2026, 4}, true},
		{"平成31年3月", YearMonth{2019, 3}, true},
		{"更新 2026/04", YearMonth{2026, 4}, true},
		{"menu_202604.pdf", YearMonth{2026, 4}, true},
		{"menu_202613.pdf", YearMonth{}, false},
		{"学生規則", YearMonth{}, false},
	}
	for _, tt := range tests {
		got, ok := ExtractYearMonth(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractYearMonth(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEraYear(t *testing.T) {
	if y, ok := EraYear("令和", 6); !ok || y != 2024 {
		t.Errorf("令和6 = %d, %v", y, ok)
	}
	if y, ok := EraYear("昭和", 60); !ok || y != 1985 {
		t.Errorf("昭和60 = %d, %v", y, ok)
	}
	if _, ok := EraYear("大正", 5); ok {
		t.Error("unknown era should not convert")
	}
}

func TestParseTerm(t *testing.T) {
	if term, ok := ParseTerm("2026年度前期時間割"); !ok || term != 0 {
		t.Errorf("前期 = %d, %v", term, ok)
	}
	if term, ok := ParseTerm("後期 1年"); !ok || term != 1 {
		t.Errorf("後期 = %d, %v", term, ok)
	}
	if _, ok := ParseTerm("時間割"); ok {
		t.Error("no keyword should not match")
	}
}

func TestAcademicYear(t *testing.T) {
	if y := AcademicYear(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)); y != 2026 {
		t.Errorf("April = %d", y)
	}
	if y := AcademicYear(time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)); y != 2025 {
		t.Errorf("March = %d", y)
	}
}

func TestSortByUpcoming(t *testing.T) {
	now := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	links := []Link{
		{URL: "a.pdf", Text: "2026年3月"},
		{URL: "b.pdf", Text: "2026年5月"},
		{URL: "c.pdf", Text: "2026年4月"},
		{URL: "d.pdf", Text: "日付なし"},
	}
	got := SortByUpcoming(links, now)
	wantOrder := []string{"b.pdf", "c.pdf", "a.pdf", "d.pdf"}
	for i, want := range wantOrder {
		if got[i].URL != want {
			t.Errorf("got[%d] = %q, want %q (full order %+v)", i, got[i].URL, want, got)
		}
	}
}

func TestNormalizeDigits(t *testing.T) {
	if got := NormalizeDigits("２０２６年４月"); got != "2026年4月" {
		t.Errorf("NormalizeDigits() = %q", got)
	}
}
