package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"CryptoSentinel/internal/exchange"
	"CryptoSentinel/internal/rule"
)

// Parse errors carry the finished reply text, Markdown included, so the
// command handlers can send err.Error() back to the chat as-is.
var (
	errAddUsage = errors.New("❌ 参数错误\n\n" +
		"*用法：*\n" +
		"`/add <币种> <类型> <参数...>`\n\n" +
		"*价格阈值监控示例：*\n" +
		"• `/add BTC price 50000` - BTC达到50000时预警\n" +
		"• `/add BTC price high 50000` - BTC达到50000时预警（明确上限）\n" +
		"• `/add BTC price low 40000` - BTC跌破40000时预警（明确下限）\n" +
		"• `/add ETH price 3000 2500` - ETH突破3000或跌破2500\n\n" +
		"*百分比监控示例：*\n" +
		"• `/add BTC percent 90000 5 -5` - BTC相对90000涨5%或跌5%\n\n" +
		"*说明：*\n" +
		"• 币种：BTC, ETH, ADA, SOL等\n" +
		"• 类型：`price`（价格）或 `percent`（百分比）")

	errUnknownRuleType = errors.New("❌ 未知的规则类型，请使用 `price` 或 `percent`")
	errHighNeedsValue  = errors.New("❌ 请指定上限价格\n示例：`/add BTC price high 50000`")
	errLowNeedsValue   = errors.New("❌ 请指定下限价格\n示例：`/add BTC price low 40000`")
	errPriceNotNumber  = errors.New("❌ 价格必须是数字")
	errNoThreshold     = errors.New("❌ 请至少指定一个价格阈值")
	errPercentUsage    = errors.New("❌ 百分比监控需要：参考价格、上涨阈值、下跌阈值\n示例：`/add BTC percent 90000 5 -5`")
	errPercentBadValue = errors.New("❌ 参数错误: 请输入有效的数字")
	errRefNotPositive  = errors.New("❌ 参数错误: 参考价格必须大于0")

	errTaskIDNotNumber = errors.New("❌ 无效的任务ID，请输入数字")

	errReportConfigUsage = errors.New("❌ 参数不足\n\n" +
		"*用法：*\n" +
		"`/report config <间隔分钟> <币种列表>`\n\n" +
		"*示例：*\n" +
		"`/report config 30 BTC,ETH,SOL`")
	errIntervalNotNumber = errors.New("❌ 间隔时间必须是数字")
	errIntervalTooShort  = errors.New("❌ 汇报间隔不能小于5分钟\n\n建议设置为30-1440分钟（30分钟到24小时）")
	errIntervalTooLong   = errors.New("❌ 汇报间隔不能超过7天（10080分钟）")
	errNoSymbols         = errors.New("❌ 请至少指定一个币种")
	errTooManySymbols    = errors.New("❌ 币种数量不能超过10个")
)

// parseAdd turns the /add arguments into a normalized symbol and a rule.
// Supported forms:
//
//	BTC price 50000            upper bound only
//	BTC price high 50000       upper bound, explicit
//	BTC price low 40000        lower bound, explicit
//	BTC price 50000 40000      upper and lower bound
//	BTC percent 90000 5 -5     reference price, rise%, optional drop%
func parseAdd(args []string) (string, rule.Rule, error) {
	if len(args) < 3 {
		return "", nil, errAddUsage
	}
	symbol := exchange.NormalizeSymbol(args[0])

	switch strings.ToLower(args[1]) {
	case "price":
		r, err := parsePriceArgs(args[2:])
		if err != nil {
			return "", nil, err
		}
		return symbol, r, nil
	case "percent", "percentage":
		r, err := parsePercentArgs(args[2:])
		if err != nil {
			return "", nil, err
		}
		return symbol, r, nil
	default:
		return "", nil, errUnknownRuleType
	}
}

func parsePriceArgs(args []string) (rule.Rule, error) {
	var high, low *float64

	switch strings.ToLower(args[0]) {
	case "high":
		if len(args) < 2 {
			return nil, errHighNeedsValue
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, errPriceNotNumber
		}
		high = &v
	case "low":
		if len(args) < 2 {
			return nil, errLowNeedsValue
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, errPriceNotNumber
		}
		low = &v
	default:
		// Bare numbers: first is the upper bound, an optional second
		// becomes the lower bound.
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, errPriceNotNumber
		}
		high = &v
		if len(args) >= 2 {
			w, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return nil, errPriceNotNumber
			}
			low = &w
		}
	}

	r, err := rule.NewPriceThreshold(high, low)
	if err != nil {
		return nil, errNoThreshold
	}
	return r, nil
}

func parsePercentArgs(args []string) (rule.Rule, error) {
	if len(args) < 2 {
		return nil, errPercentUsage
	}
	ref, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return nil, errPercentBadValue
	}
	high, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return nil, errPercentBadValue
	}
	var lowPct *float64
	if len(args) >= 3 {
		low, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, errPercentBadValue
		}
		lowPct = &low
	}

	r, err := rule.NewPercentageChange(ref, &high, lowPct)
	if err != nil {
		return nil, errRefNotPositive
	}
	return r, nil
}

// parseTaskID reads the task id argument of /delete, /pause and /resume.
// The usage text names the command it was called for.
func parseTaskID(command string, args []string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("❌ 请指定任务ID\n\n"+
			"用法: `/%s <任务ID>`\n"+
			"示例: `/%s 1`\n\n"+
			"使用 `/list` 查看所有任务ID", command, command)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, errTaskIDNotNumber
	}
	return id, nil
}

// parseReportConfig reads the arguments after "/report config". Symbols
// may be one comma-joined token or separate tokens; both are normalized.
func parseReportConfig(args []string) (int, []string, error) {
	if len(args) < 2 {
		return 0, nil, errReportConfigUsage
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, nil, errIntervalNotNumber
	}
	if minutes < 5 {
		return 0, nil, errIntervalTooShort
	}
	if minutes > 10080 {
		return 0, nil, errIntervalTooLong
	}

	var symbols []string
	for _, tok := range strings.Split(strings.Join(args[1:], ","), ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		symbols = append(symbols, exchange.NormalizeSymbol(tok))
	}
	if len(symbols) == 0 {
		return 0, nil, errNoSymbols
	}
	if len(symbols) > 10 {
		return 0, nil, errTooManySymbols
	}
	return minutes, symbols, nil
}
