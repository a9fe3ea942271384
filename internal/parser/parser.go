package parser

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"heiten-crawler/internal/classifier"
	"heiten-crawler/internal/models"
	"heiten-crawler/pkg/logger"
)

// Selectors for the detail page layout.
const (
	titleSel      = "h1.entry-title"
	metaSel       = "div.post_meta"
	updateDateSel = "span.post_time > i"
	openDateSel   = "div.post_body > h3"
	tableRowSel   = "table#address tr"
)

// AddressLabel is the attribute table key whose value carries the postal code.
const AddressLabel = "住所"

var (
	whitespaceRe = regexp.MustCompile(`[^\S\n]+`)
	// \p{Nd} so full-width digits count too.
	openDateRe   = regexp.MustCompile(`\p{Nd}+年\p{Nd}+月\p{Nd}+日`)
	postalCodeRe = regexp.MustCompile(`〒[0-9]{3}-[0-9]{4}`)
)

// NewDocument decodes r to UTF-8 using the declared or sniffed charset and
// parses it.
func NewDocument(r io.Reader, contentType string) (*goquery.Document, error) {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	enc, _, _ := charset.DetermineEncoding(data, contentType)
	utf8data, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		// fallback: if already utf-8, continue
		if !utf8.Valid(data) {
			return nil, err
		}
		utf8data = data
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(utf8data))
}

type Extractor struct {
	classifier *classifier.Classifier
	log        *logger.Logger
}

func New(cl *classifier.Classifier, l *logger.Logger) *Extractor {
	return &Extractor{classifier: cl, log: l}
}

// Extract turns a detail page into a record. It never fails: fields it
// cannot find come back empty.
func (p *Extractor) Extract(doc *goquery.Document, pageURL string) models.Record {
	title := strings.TrimSpace(doc.Find(titleSel).First().Text())
	p.log.Infof("restaurant: %s", title)

	meta := doc.Find(metaSel)
	table, postal := p.tableData(doc.Find(tableRowSel))

	rec := models.Record{
		Name:       title,
		Genre:      p.classifier.Genre(meta),
		UpdateDate: updateDate(meta),
		OpenDate:   p.openDate(doc.Find(openDateSel), pageURL),
		URL:        pageURL,
		PostalCode: postal,
	}
	for _, f := range table {
		// explicit fields win over same-named table keys
		if models.IsCoreField(f.Key) {
			continue
		}
		rec.Extra = append(rec.Extra, f)
	}
	return rec
}

func updateDate(meta *goquery.Selection) string {
	return strings.TrimSpace(meta.Find(updateDateSel).First().AttrOr("title", ""))
}

func (p *Extractor) openDate(headings *goquery.Selection, pageURL string) string {
	date := openDateRe.FindString(headings.Text())
	if date == "" {
		p.log.Warnf("open date not found: %s", pageURL)
	}
	return date
}

// tableData reads the two-column attribute table. Rows with any other cell
// count are skipped. Duplicate keys keep their first position and the last
// value.
func (p *Extractor) tableData(rows *goquery.Selection) ([]models.Field, string) {
	var (
		fields []models.Field
		index  = map[string]int{}
		postal string
	)
	rows.Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() != 2 {
			html, _ := goquery.OuterHtml(row)
			p.log.Debugf("wrong num on table row: %s", html)
			return
		}
		key := cellValue(cells.Eq(0))
		value := cellValue(cells.Eq(1))

		if key == AddressLabel {
			var code string
			value, code = SplitPostalCode(value)
			if code != "" {
				postal = code
			}
		}

		if at, ok := index[key]; ok {
			fields[at].Value = value
			return
		}
		index[key] = len(fields)
		fields = append(fields, models.Field{Key: key, Value: value})
	})
	return fields, postal
}

// cellValue is the href of the cell's only link when that link is a real
// URL (the shop's homepage), otherwise the visible text.
func cellValue(cell *goquery.Selection) string {
	links := cell.Find("a")
	if links.Length() == 1 {
		href := strings.TrimSpace(links.AttrOr("href", ""))
		if href != "" && !strings.HasPrefix(strings.ToLower(href), "tel:") {
			return href
		}
	}
	return cellText(cell)
}

func cellText(cell *goquery.Selection) string {
	c := cell.Clone()
	c.Find("br").ReplaceWithHtml("\n")
	var lines []string
	for _, line := range strings.Split(c.Text(), "\n") {
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// SplitPostalCode pulls 〒DDD-DDDD out of an address. The address
// comes back without it and trimmed; code is "" when there is none.
func SplitPostalCode(address string) (rest, code string) {
	code = postalCodeRe.FindString(address)
	if code == "" {
		return address, ""
	}
	return strings.TrimSpace(strings.ReplaceAll(address, code, "")), code
}
