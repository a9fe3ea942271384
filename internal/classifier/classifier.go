package classifier

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Classifier infers a detail page's genre. The site never labels the genre;
// it only shows tag links, and genre tags are the ones pointing one level
// below the listing URL (e.g. <listURL>cafe/). That URL template is the
// precondition; when nothing matches the genre is "".
type Classifier struct {
	categoryRe *regexp.Regexp
}

func New(listURL string) *Classifier {
	return &Classifier{categoryRe: regexp.MustCompile(`^` + regexp.QuoteMeta(listURL) + `[^/]+/`)}
}

const categoryLinks = `a[rel='category tag']`

// Genre returns the text of the first category link under meta whose href
// matches the category URL template.
func (c *Classifier) Genre(meta *goquery.Selection) string {
	genre := ""
	meta.Find(categoryLinks).EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || href == "" || !c.categoryRe.MatchString(href) {
			return true
		}
		genre = strings.TrimSpace(s.Text())
		return false
	})
	return genre
}

// IsCategoryURL reports whether href follows the category URL template.
func (c *Classifier) IsCategoryURL(href string) bool {
	return c.categoryRe.MatchString(href)
}
