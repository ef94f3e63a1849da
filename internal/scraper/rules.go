package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"quotescraper/internal/utils"
)

// Rule locates the three quote fields inside a captured page.
type Rule interface {
	Extract(page Page) (Fields, error)
}

// LineRule picks fields by zero-based line offset in the page text. Each
// Strip token is removed together with its leading space (" Today").
type LineRule struct {
	Price        int
	Variation    int
	VariationPct int
	Strip        []string
}

func (r LineRule) Extract(page Page) (Fields, error) {
	lines := strings.Split(page.Text, "\n")

	pick := func(field string, idx int) (string, error) {
		if idx < 0 || idx >= len(lines) {
			return "", NewMissingFieldError(fmt.Sprintf("%s (line %d of %d)", field, idx, len(lines)))
		}
		line := lines[idx]
		for _, tok := range r.Strip {
			line = strings.ReplaceAll(line, " "+tok, "")
		}
		return strings.TrimSpace(line), nil
	}

	var f Fields
	var err error
	if f.Price, err = pick("price", r.Price); err != nil {
		return Fields{}, err
	}
	if f.Variation, err = pick("variation", r.Variation); err != nil {
		return Fields{}, err
	}
	if f.VariationPct, err = pick("variation percent", r.VariationPct); err != nil {
		return Fields{}, err
	}
	return f, nil
}

// SelectorRule evaluates CSS selectors against the page HTML.
type SelectorRule struct {
	Price        string
	Variation    string
	VariationPct string
}

func (r SelectorRule) Extract(page Page) (Fields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return Fields{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	pick := func(field, selector string) (string, error) {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text == "" {
			return "", NewMissingFieldError(fmt.Sprintf("%s (%s)", field, selector))
		}
		return text, nil
	}

	var f Fields
	if f.Price, err = pick("price", r.Price); err != nil {
		return Fields{}, err
	}
	if f.Variation, err = pick("variation", r.Variation); err != nil {
		return Fields{}, err
	}
	if f.VariationPct, err = pick("variation percent", r.VariationPct); err != nil {
		return Fields{}, err
	}
	return f, nil
}

func RuleFromConfig(cfg utils.RuleConfig) (Rule, error) {
	switch cfg.Kind {
	case "lines", "":
		return LineRule{
			Price:        cfg.PriceLine,
			Variation:    cfg.VariationLine,
			VariationPct: cfg.VariationPctLine,
			Strip:        cfg.Strip,
		}, nil
	case "selectors":
		return SelectorRule{
			Price:        cfg.PriceSelector,
			Variation:    cfg.VariationSelector,
			VariationPct: cfg.PctSelector,
		}, nil
	default:
		return nil, fmt.Errorf("unknown rule kind %q", cfg.Kind)
	}
}

// visibleText flattens the body into one line per non-empty text node, the
// same shape a browser's innerText gives for a block layout.
func visibleText(doc *goquery.Document) string {
	var lines []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			switch goquery.NodeName(node) {
			case "#text":
				if text := strings.TrimSpace(node.Text()); text != "" {
					lines = append(lines, text)
				}
			case "script", "style", "noscript", "template", "#comment":
			default:
				walk(node)
			}
		})
	}
	walk(doc.Find("body"))
	return strings.Join(lines, "\n")
}
