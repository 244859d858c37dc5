package mapper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"storefront-builder-service/internal/clients"
)

var hundred = decimal.NewFromInt(100)

// NormalizePrice converts a provider price to a decimal in the store currency.
// Minor-unit integers are scaled by their divisor (100 when absent); decimal
// strings are parsed as-is. Unparseable prices become zero.
func NormalizePrice(m clients.Money) decimal.Decimal {
	if m.Minor != nil {
		divisor := hundred
		if m.Divisor > 0 {
			divisor = decimal.NewFromInt(m.Divisor)
		}
		return decimal.NewFromInt(*m.Minor).Div(divisor).Round(2)
	}
	return ParsePrice(m.Amount)
}

// ParsePrice parses a decimal price string, tolerating currency symbols and thousands separators
func ParsePrice(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

var blockSelectors = "p, div, li, h1, h2, h3, h4, h5, h6, tr"

// StripHTML reduces an HTML fragment to plain text, keeping block boundaries as newlines
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return collapseWhitespace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseWhitespace(s)
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelectors).Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})
	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
