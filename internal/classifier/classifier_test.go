package classifier

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const listURL = "https://kaiten-heiten.com/category/restaurant/"

func metaSelection(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc.Find("div.post_meta")
}

func TestGenre(t *testing.T) {
	cl := New(listURL)
	meta := metaSelection(t, `<div class="post_meta">
<a rel="category tag" href="https://kaiten-heiten.com/category/tokyo/">東京</a>
<a rel="category tag" href="https://kaiten-heiten.com/category/restaurant/">飲食店</a>
<a rel="category tag" href="https://kaiten-heiten.com/category/restaurant/cafe/">Café</a>
<a rel="category tag" href="https://kaiten-heiten.com/category/restaurant/ramen/">ラーメン</a>
</div>`)
	if got := cl.Genre(meta); got != "Café" {
		t.Fatalf("want Café, got %q", got)
	}
}

func TestGenreNoMatch(t *testing.T) {
	cl := New(listURL)
	meta := metaSelection(t, `<div class="post_meta">
<a rel="category tag" href="https://kaiten-heiten.com/category/restaurant/">飲食店</a>
<a rel="tag" href="https://kaiten-heiten.com/category/restaurant/cafe/">not a category link</a>
</div>`)
	if got := cl.Genre(meta); got != "" {
		t.Fatalf("want empty genre, got %q", got)
	}
}

func TestIsCategoryURL(t *testing.T) {
	cl := New(listURL)
	cases := []struct {
		href string
		want bool
	}{
		{listURL + "cafe/", true},
		{listURL + "cafe/page/2/", true},
		{listURL, false},
		{"https://example.com/category/restaurant/cafe/", false},
		{"x" + listURL + "cafe/", false},
	}
	for _, c := range cases {
		if got := cl.IsCategoryURL(c.href); got != c.want {
			t.Errorf("IsCategoryURL(%q) = %v, want %v", c.href, got, c.want)
		}
	}
}
