package scrape

import (
	"net/url"
	"strings"
	"testing"
)

func TestParseRuleChapters(t *testing.T) {
	page := `<html><body>
	<h1>規則集</h1>
	<div class="pagebody">
	  <h2>寮務関係</h2>
	  <p><a href="/rules/dorm.pdf">寮生活規則</a></p>
	  <p><a href="/rules/stay.pdf">外泊に関する規程</a></p>
	  <p><a href="/rules/stay.pdf">外泊に関する規程</a></p>
	  <p><a href="/rules/notes.html">注意事項</a></p>
	  <h3>教務関係</h3>
	  <ul><li><a href="exams.pdf">試験規程</a></li></ul>
	  <h2>リンクなしの章</h2>
	  <p>PDFはまだ公開されていません。</p>
	</div>
	<a href="/footer/terms.pdf">サイト利用規約</a>
	</body></html>`
	base, _ := url.Parse("https://school.example.jp/about/rules/")

	chapters, err := ParseRuleChapters(strings.NewReader(page), base)
	if err != nil {
		t.Fatalf("ParseRuleChapters() error = %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(chapters))
	}

	if chapters[0].Name != "寮務関係" {
		t.Errorf("chapter[0].Name = %q", chapters[0].Name)
	}
	if len(chapters[0].Links) != 2 {
		t.Fatalf("chapter[0] links = %d, want 2 (duplicate and non-PDF dropped)", len(chapters[0].Links))
	}
	if got := chapters[0].Links[0].URL; got != "https://school.example.jp/rules/dorm.pdf" {
		t.Errorf("link URL = %q", got)
	}
	if got := chapters[0].Links[0].Text; got != "寮生活規則" {
		t.Errorf("link text = %q", got)
	}

	if chapters[1].Name != "教務関係" {
		t.Errorf("chapter[1].Name = %q", chapters[1].Name)
	}
	if got := chapters[1].Links[0].URL; got != "https://school.example.jp/about/rules/exams.pdf" {
		t.Errorf("relative link not resolved: %q", got)
	}
}

func TestParseRuleChaptersNoContainer(t *testing.T) {
	page := `<html><body>
	<h2>学生関係</h2>
	<a href="a.pdf">学生規則</a>
	</body></html>`
	base, _ := url.Parse("https://school.example.jp/rules/")

	chapters, err := ParseRuleChapters(strings.NewReader(page), base)
	if err != nil {
		t.Fatalf("ParseRuleChapters() error = %v", err)
	}
	if len(chapters) != 1 || len(chapters[0].Links) != 1 {
		t.Fatalf("chapters = %+v, want one chapter with one link", chapters)
	}
}
