package printer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

// DefaultWidth is the character width of a 58mm receipt roll.
const DefaultWidth = 32

type align int

const (
	alignLeft align = iota
	alignCenter
)

type line struct {
	text  string
	align align
	bold  bool
}

// layout lays a receipt out as lines of at most width characters.
func layout(p domain.DocumentPayload, width int) ([]line, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if width < 24 {
		width = DefaultWidth
	}

	var lines []line
	add := func(text string, a align, bold bool) {
		for _, chunk := range wrap(text, width) {
			lines = append(lines, line{text: chunk, align: a, bold: bold})
		}
	}
	rule := func() { lines = append(lines, line{text: strings.Repeat("-", width)}) }

	if p.Shop.Name != "" {
		add(p.Shop.Name, alignCenter, true)
	}
	if p.Shop.Address != "" {
		add(p.Shop.Address, alignCenter, false)
	}
	if p.Shop.Phone != "" {
		add(p.Shop.Phone, alignCenter, false)
	}
	rule()

	lines = append(lines, line{text: columns("No", p.NoteNumber, width)})
	if p.Date != "" {
		lines = append(lines, line{text: columns("Date", p.Date, width)})
	}
	if p.Customer.Name != "" {
		lines = append(lines, line{text: columns("Customer", p.Customer.Name, width)})
	}
	if p.Customer.Phone != "" {
		lines = append(lines, line{text: columns("Phone", p.Customer.Phone, width)})
	}
	rule()

	for _, item := range p.Items {
		add(item.Description, alignLeft, false)
		qty := fmt.Sprintf("  %d x %s", item.Quantity, FormatAmount(item.UnitPrice))
		lines = append(lines, line{text: columns(qty, FormatAmount(item.Total), width)})
	}
	rule()

	lines = append(lines, line{text: columns("Subtotal", FormatAmount(p.Totals.Subtotal), width)})
	if p.Totals.Discount != 0 {
		lines = append(lines, line{text: columns("Discount", "-"+FormatAmount(p.Totals.Discount), width)})
	}
	if p.Totals.Tax != 0 {
		lines = append(lines, line{text: columns("Tax", FormatAmount(p.Totals.Tax), width)})
	}
	lines = append(lines, line{text: columns("TOTAL", FormatAmount(p.Totals.Total), width), bold: true})

	if p.Payment.Method != "" {
		lines = append(lines, line{text: columns("Paid ("+p.Payment.Method+")", FormatAmount(p.Payment.Paid), width)})
	}
	if p.Payment.Change != 0 {
		lines = append(lines, line{text: columns("Change", FormatAmount(p.Payment.Change), width)})
	}
	if p.Payment.Status != "" {
		lines = append(lines, line{text: columns("Status", strings.ToUpper(p.Payment.Status), width)})
	}

	if p.Footer != "" {
		rule()
		add(p.Footer, alignCenter, false)
	}

	return lines, nil
}

// columns puts left and right on one line, truncating left when needed.
func columns(left, right string, width int) string {
	space := width - utf8.RuneCountInString(right) - 1
	if space < 1 {
		return truncate(right, width)
	}
	left = truncate(left, space)
	return left + strings.Repeat(" ", width-utf8.RuneCountInString(left)-utf8.RuneCountInString(right)) + right
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// wrap breaks text on spaces; words longer than width are split.
func wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var out []string
	current := ""
	for _, word := range words {
		for utf8.RuneCountInString(word) > width {
			if current != "" {
				out = append(out, current)
				current = ""
			}
			r := []rune(word)
			out = append(out, string(r[:width]))
			word = string(r[width:])
		}
		switch {
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width:
			current += " " + word
		default:
			out = append(out, current)
			current = word
		}
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

// FormatAmount renders minor units with thousands separators: 1250000 -> "1.250.000".
func FormatAmount(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)

	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// RenderText renders the receipt as plain text, one line per row.
func RenderText(p domain.DocumentPayload, width int) ([]byte, error) {
	lines, err := layout(p, width)
	if err != nil {
		return nil, err
	}
	if width < 24 {
		width = DefaultWidth
	}

	var b strings.Builder
	for _, l := range lines {
		text := l.text
		if l.align == alignCenter {
			pad := (width - utf8.RuneCountInString(text)) / 2
			if pad > 0 {
				text = strings.Repeat(" ", pad) + text
			}
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}
