package pipeline

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"ocrr/internal"
	"ocrr/internal/util"
)

var (
	ignorePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^--+$`),
		regexp.MustCompile(`(?i)^merci`),
		regexp.MustCompile(`(?i)^cordialement`),
		regexp.MustCompile(`(?i)^t[eé]l[:.\s]`),
		regexp.MustCompile(`(?i)^e-?mail[:\s]`),
		regexp.MustCompile(`(?i)^http`),
	}
	spacesPattern    = regexp.MustCompile(`\s+`)
	lineQtyPattern   = regexp.MustCompile(`(?i)(?:\bx\s*|\bqt[eé]\.?\s*:?\s*|\bquantit[eé]\s*:?\s*)(\d{1,3})\b`)
	linePricePattern = regexp.MustCompile(`\b(\d{1,4}[.,]\d{2})\s*(?:€|eur\b)?`)
	lineWordPattern  = regexp.MustCompile(`^\pL{3,}$`)
	lineStopWords    = map[string]struct{}{
		"REF": {}, "QTE": {}, "PRIX": {}, "TAILLE": {}, "COLORIS": {}, "QUANTITE": {}, "EUR": {},
	}
)

// MailBon is a bon read from an email together with what order-form
// detection needs.
type MailBon struct {
	Bon             internal.Bon
	Subject         string
	HTML            string
	AttachmentNames []string
}

// ExtractBonFromEmailRaw reads every part of a mailed bon: JSON exports,
// order sheets, PDF text and the message body.
func ExtractBonFromEmailRaw(raw []byte) (MailBon, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return MailBon{}, err
	}

	bon := internal.Bon{Source: internal.SourceEmail, Items: []internal.ExtractedItem{}}
	texts := []string{}
	if env.Text != "" {
		texts = append(texts, env.Text)
		bon.Items = append(bon.Items, parseTextLines(env.Text, nil)...)
	}
	if env.HTML != "" {
		bon.Items = append(bon.Items, parseHTMLTables(env.HTML)...)
		if env.Text == "" {
			texts = append(texts, htmlText(env.HTML))
		}
	}

	names := make([]string, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = "attachment"
		}
		names = append(names, name)

		switch strings.ToLower(filepath.Ext(name)) {
		case ".json":
			mapped, err := MapBon(att.Content)
			if err != nil {
				continue
			}
			bon.Items = append(bon.Items, mapped.Items...)
			if mapped.OCRText != "" {
				texts = append(texts, mapped.OCRText)
			}
			if bon.RawResponse == "" {
				bon.RawResponse = mapped.RawResponse
			}
		case ".xlsx", ".xlsm":
			if items, err := parseOrderSheet(att.Content); err == nil {
				bon.Items = append(bon.Items, items...)
			}
		case ".pdf":
			text, items, err := parsePDF(att.Content)
			if err != nil {
				continue
			}
			texts = append(texts, text)
			bon.Items = append(bon.Items, items...)
		}
	}

	bon.OCRText = strings.Join(texts, "\n")
	return MailBon{Bon: bon, Subject: env.GetHeader("Subject"), HTML: env.HTML, AttachmentNames: names}, nil
}

// parseTextLines keeps the lines that carry something shaped like a
// reference and reads quantity, price and designation around it.
func parseTextLines(text string, page *int) []internal.ExtractedItem {
	out := []internal.ExtractedItem{}
	for _, line := range splitLines(text) {
		compact := normalizeSpaces(line)
		if compact == "" || isLikelyNoise(compact) {
			continue
		}
		item, ok := lineToItem(compact)
		if !ok {
			continue
		}
		item.Page = page
		out = append(out, item)
	}
	return out
}

func lineToItem(line string) (internal.ExtractedItem, bool) {
	var ref string
	words := []string{}
	for _, token := range strings.Fields(line) {
		key := util.NormalizeKey(token)
		if ref == "" && len(key) >= 6 && len(key) <= 11 && len(util.LongestDigitRun(key)) >= util.MinAnchorLength {
			ref = token
			continue
		}
		if lineWordPattern.MatchString(strings.Trim(token, ".,:;")) {
			if _, stop := lineStopWords[key]; !stop {
				words = append(words, strings.Trim(token, ".,:;"))
			}
		}
	}
	if ref == "" {
		return internal.ExtractedItem{}, false
	}

	item := internal.ExtractedItem{ReferenceOCR: internal.T(ref)}
	if m := lineQtyPattern.FindStringSubmatch(line); m != nil {
		item.QuantityRaw = internal.T(m[1])
	}
	if m := linePricePattern.FindStringSubmatch(line); m != nil {
		item.UnitPriceRaw = internal.T(m[1])
	}
	if len(words) > 0 {
		item.ModelNameRaw = internal.T(strings.Join(words, " "))
	}
	return item, true
}

func htmlText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	lines := []string{}
	doc.Find("p,div,tr,li,td,th").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 && goquery.NodeName(s) != "tr" {
			return
		}
		if text := normalizeSpaces(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		return normalizeSpaces(doc.Text())
	}
	return strings.Join(lines, "\n")
}

func parseHTMLTables(html string) []internal.ExtractedItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.ExtractedItem{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}
		headers := []string{}
		rows.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, normalizeSpaces(cell.Text()))
		})
		columns := inferColumns(headers)
		if _, ok := columns[fieldReference]; !ok {
			if _, ok := columns[fieldModel]; !ok {
				return
			}
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeSpaces(cell.Text()))
			})
			if item, ok := rowToItem(columns, cells); ok {
				out = append(out, item)
			}
		})
	})
	return out
}

// parseOrderSheet reads order lines from every sheet whose header row, within
// the first three rows, names a reference or model column.
func parseOrderSheet(content []byte) ([]internal.ExtractedItem, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []internal.ExtractedItem{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		var columns map[bonField]int
		for i, row := range rows {
			cells := normalizeCells(row)
			if len(cells) == 0 {
				continue
			}
			if columns == nil {
				if i >= 3 {
					break
				}
				candidate := inferColumns(cells)
				_, hasRef := candidate[fieldReference]
				_, hasModel := candidate[fieldModel]
				if hasRef || hasModel {
					columns = candidate
				}
				continue
			}
			if item, ok := rowToItem(columns, cells); ok {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func parsePDF(content []byte) (string, []internal.ExtractedItem, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", nil, err
	}

	pages := []string{}
	items := []internal.ExtractedItem{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
		items = append(items, parseTextLines(text, util.IntPtr(i))...)
	}
	return strings.Join(pages, "\n"), items, nil
}

func inferColumns(headers []string) map[bonField]int {
	columns := map[bonField]int{}
	for i, h := range headers {
		field, ok := fieldForHeader(h)
		if !ok {
			continue
		}
		if _, taken := columns[field]; !taken {
			columns[field] = i
		}
	}
	return columns
}

func rowToItem(columns map[bonField]int, cells []string) (internal.ExtractedItem, bool) {
	get := func(field bonField) internal.Text {
		idx, ok := columns[field]
		if !ok {
			return internal.Text{}
		}
		return internal.Text{Value: util.NonEmpty(pickCell(cells, idx, -1))}
	}
	item := internal.ExtractedItem{
		ModelNameRaw:  get(fieldModel),
		ColorisRaw:    get(fieldColor),
		ReferenceOCR:  get(fieldReference),
		SizeOrCodeRaw: get(fieldSize),
		QuantityRaw:   get(fieldQuantity),
		UnitPriceRaw:  get(fieldPrice),
	}
	return item, item.Informative()
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeSpaces(input string) string {
	return strings.TrimSpace(spacesPattern.ReplaceAllString(input, " "))
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func pickCell(cells []string, idx int, fallback int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	if fallback >= 0 && fallback < len(cells) {
		return strings.TrimSpace(cells[fallback])
	}
	return ""
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, normalizeSpaces(c))
	}
	return out
}
