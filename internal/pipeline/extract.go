package pipeline

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"orderdesk/internal/util"
)

// EmailContent is the order-relevant part of one mail message.
type EmailContent struct {
	Subject         string
	Text            string
	AttachmentNames []string
}

// ExtractOrderTextFromEmail returns the mail's plain text body. HTML-only
// mail is flattened to text; PDF and XLSX attachments are appended.
func ExtractOrderTextFromEmail(raw []byte) (EmailContent, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return EmailContent{}, err
	}

	parts := []string{}
	text := env.Text
	if strings.TrimSpace(text) == "" && env.HTML != "" {
		text = htmlToText(env.HTML)
	}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, text)
	}

	names := make([]string, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		names = append(names, filename)

		lower := strings.ToLower(filename)
		switch {
		case strings.HasSuffix(lower, ".pdf"):
			if extra, err := pdfText(att.Content); err == nil && extra != "" {
				parts = append(parts, extra)
			}
		case strings.HasSuffix(lower, ".xlsx"):
			if extra, err := xlsxText(att.Content); err == nil && extra != "" {
				parts = append(parts, extra)
			}
		}
	}

	return EmailContent{
		Subject:         env.GetHeader("Subject"),
		Text:            strings.Join(parts, "\n"),
		AttachmentNames: names,
	}, nil
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script,style,head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p,div,li,tr,h1,h2,h3,h4,h5,h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("td,th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(util.SplitLines(doc.Text()), "\n")
}

func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	lines := []string{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		lines = append(lines, util.SplitLines(text)...)
	}
	return strings.Join(lines, "\n"), nil
}

// xlsxText reads every sheet row by row, joining the non-empty cells of a
// row with spaces.
func xlsxText(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	defer f.Close()

	lines := []string{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = util.NormalizeSpaces(c); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " "))
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
