package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"CryptoSentinel/internal/model"
)

// FormatPrice renders a USD price with precision adapted to its
// magnitude, so majors stay readable and micro-caps keep their digits.
func FormatPrice(v float64) string {
	switch {
	case v >= 1000:
		return humanize.CommafWithDigits(v, 2)
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.6f", v)
	}
}

// FormatQuotes renders the /price reply. Symbols keep the caller's
// order; symbols without a quote get a failure placeholder.
func FormatQuotes(symbols []string, quotes map[string]*model.PriceQuote) string {
	var b strings.Builder
	b.WriteString("💰 *当前价格*\n\n")
	for _, sym := range symbols {
		q := quotes[sym]
		if q == nil {
			b.WriteString(fmt.Sprintf("%s: ❌ 获取失败\n", sym))
			continue
		}
		b.WriteString(fmt.Sprintf("%s: $%s _(%s)_\n", sym, FormatPrice(q.Price), q.Source))
	}
	return b.String()
}

// FormatReport renders a periodic price report.
func FormatReport(symbols []string, quotes map[string]*model.PriceQuote, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 *定时价格报告* | %s\n\n", now.Format("2006-01-02 15:04")))

	source := ""
	for _, sym := range symbols {
		q := quotes[sym]
		if q == nil {
			b.WriteString(fmt.Sprintf("%s: ❌ 获取失败\n", sym))
			continue
		}
		b.WriteString(fmt.Sprintf("%s: $%s\n", sym, FormatPrice(q.Price)))
		if source == "" {
			source = q.Source
		}
	}

	if source != "" {
		b.WriteString(fmt.Sprintf("\n💡 _数据来源: %s_", source))
	}
	return b.String()
}
