package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"CryptoSentinel/internal/exchange"
	"CryptoSentinel/internal/model"
	"CryptoSentinel/internal/notifier"
	"CryptoSentinel/internal/rule"
	"CryptoSentinel/internal/store"
)

const divider = "━━━━━━━━━━━━━━━━━━━━━━"

const welcomeText = "欢迎使用加密货币价格监控机器人！\n\n" +
	"我是您的行情监控助手，可以帮您：\n\n" +
	"*核心功能：*\n" +
	"• 实时价格查询\n" +
	"• 价格阈值预警\n" +
	"• 百分比涨跌监控\n" +
	"• 定时价格汇报\n\n" +
	"*数据来源：* Binance / CoinGecko / CryptoCompare 多源行情\n\n" +
	"*快速开始：*\n" +
	"/help - 查看完整指令列表\n" +
	"/price BTC - 查询 BTC 当前价格\n" +
	"/add - 创建监控任务\n\n" +
	"让我们开始吧！"

const helpText = "*可用指令列表：*\n\n" +
	"*基础查询*\n" +
	"/price <币种> - 查询实时价格\n" +
	"   示例：/price BTC 或 /price BTC ETH\n\n" +
	"/help - 显示此帮助信息\n\n" +
	"*监控任务管理*\n" +
	"/add - 创建监控任务\n" +
	"   支持的规则类型：\n" +
	"   • 价格阈值：当价格达到指定值时提醒\n" +
	"   • 百分比涨跌：当涨跌幅达到指定百分比时提醒\n\n" +
	"/list - 查看所有监控任务\n\n" +
	"/delete <ID> - 删除监控任务\n" +
	"   示例：/delete 1\n\n" +
	"/pause <ID> - 暂停监控任务\n" +
	"/resume <ID> - 恢复监控任务\n\n" +
	"*定时汇报*\n" +
	"/report - 配置和管理定时价格汇报\n" +
	"   使用 /report 查看详细用法\n\n" +
	"*注意事项：*\n" +
	"• 价格数据多源获取，单一来源故障自动切换\n" +
	"• 每个用户最多可创建 50 个监控任务\n" +
	"• 预警冷却时间默认为 5 分钟\n\n" +
	"有问题？请联系开发者"

const priceUsageText = "❌ *请提供币种名称*\n\n" +
	divider + "\n" +
	"*用法示例：*\n" +
	"`/price BTC` - 查询比特币价格\n" +
	"`/price ETH` - 查询以太坊价格\n" +
	"`/price SOL` - 查询 Solana 价格\n" +
	divider + "\n\n" +
	"💡 支持所有主流加密货币"

const priceFetchFailedText = "❌ *无法获取价格数据*\n\n" +
	divider + "\n" +
	"⚠️ API 请求失败\n" +
	divider + "\n\n" +
	"可能的原因：\n" +
	"• 网络连接问题\n" +
	"• API 服务暂时不可用\n" +
	"• 请求频率过高\n\n" +
	"💡 请稍后再试"

const emptyListText = "📭 *暂无监控任务*\n\n" +
	"使用 `/add` 创建新的监控任务\n\n" +
	"*示例：*\n" +
	"`/add BTC price 50000`"

const reportHelpText = "📊 *价格汇报功能*\n\n" +
	divider + "\n\n" +
	"*配置汇报参数：*\n" +
	"`/report config <间隔> <币种>`\n\n" +
	"   示例：`/report config 30 BTC,ETH,SOL`\n" +
	"   说明：每30分钟汇报BTC、ETH、SOL价格\n\n" +
	"*启动汇报：*\n" +
	"`/report start`\n\n" +
	"*停止汇报：*\n" +
	"`/report stop`\n\n" +
	"*查看当前配置：*\n" +
	"`/report status`\n\n" +
	divider + "\n\n" +
	"*参数说明：*\n" +
	"• 间隔：汇报间隔（分钟），建议30-1440（30分钟到24小时）\n" +
	"• 币种：用逗号分隔，例如 BTC,ETH,ADA\n\n" +
	"*注意事项：*\n" +
	"• 配置后需要手动启动汇报\n" +
	"• 修改配置不会自动重启，需要先stop再start\n" +
	"• 支持的币种：BTC、ETH、SOL、ADA、BNB等主流币种"

const reportNotConfiguredText = "❌ 尚未配置汇报参数\n\n" +
	"请先使用 `/report config` 配置汇报参数\n" +
	"例如：`/report config 30 BTC,ETH,SOL`"

func money(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}

func invalidSymbolText(symbol string) string {
	return fmt.Sprintf("❌ 无效的币种: %s\n\n请检查币种名称是否正确", symbol)
}

func (h *Handler) cmdStart(msg *tgbotapi.Message) {
	h.log.Info().Int64("user_id", msg.From.ID).Str("username", msg.From.UserName).Msg("user started the bot")
	h.send(msg.Chat.ID, welcomeText)
}

func (h *Handler) cmdHelp(msg *tgbotapi.Message) {
	h.send(msg.Chat.ID, helpText)
}

func (h *Handler) cmdPrice(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) == 0 {
		h.send(msg.Chat.ID, priceUsageText)
		return
	}
	symbols := make([]string, 0, len(args))
	for _, a := range args {
		symbols = append(symbols, exchange.NormalizeSymbol(a))
	}
	if len(symbols) > 10 {
		h.send(msg.Chat.ID, errTooManySymbols.Error())
		return
	}

	// A single symbol gets the detailed error replies; a batch renders
	// per-symbol failure lines instead.
	if len(symbols) == 1 {
		quote, err := h.prices.CurrentPrice(ctx, symbols[0])
		switch {
		case errors.Is(err, exchange.ErrUnknownSymbol):
			h.send(msg.Chat.ID, invalidSymbolText(symbols[0]))
			return
		case err != nil:
			h.log.Warn().Err(err).Str("symbol", symbols[0]).Msg("price query failed")
			h.send(msg.Chat.ID, priceFetchFailedText)
			return
		}
		h.send(msg.Chat.ID, notifier.FormatQuotes(symbols, map[string]*model.PriceQuote{symbols[0]: quote}))
		return
	}

	quotes := h.prices.MultiPrice(ctx, symbols)
	h.send(msg.Chat.ID, notifier.FormatQuotes(symbols, quotes))
}

func (h *Handler) cmdAdd(ctx context.Context, msg *tgbotapi.Message, args []string) {
	symbol, r, err := parseAdd(args)
	if err != nil {
		h.send(msg.Chat.ID, err.Error())
		return
	}
	if !h.prices.ValidateSymbol(ctx, symbol) {
		h.send(msg.Chat.ID, invalidSymbolText(symbol))
		return
	}

	limit := h.store.SystemInt("max_tasks_per_user", 50)
	n, err := h.store.CountTasksByUser(msg.From.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("counting tasks failed")
		h.send(msg.Chat.ID, "❌ 创建监控任务失败，请稍后再试")
		return
	}
	if n >= limit {
		h.send(msg.Chat.ID, fmt.Sprintf("❌ 监控任务数量已达上限（%d个）\n\n请先使用 `/delete` 删除部分任务", limit))
		return
	}

	task := &model.MonitorTask{
		UserID:          msg.From.ID,
		Symbol:          symbol,
		Rule:            r,
		CooldownSeconds: h.store.SystemInt("default_cooldown_seconds", 300),
	}
	if err := h.store.CreateTask(task); err != nil {
		h.log.Error().Err(err).Msg("creating task failed")
		h.send(msg.Chat.ID, "❌ 创建监控任务失败，请稍后再试")
		return
	}

	var b strings.Builder
	b.WriteString("✅ *监控任务已创建*\n\n")
	fmt.Fprintf(&b, "📊 币种: `%s`\n", symbol)
	switch v := r.(type) {
	case *rule.PriceThreshold:
		if v.High != nil {
			fmt.Fprintf(&b, "🔺 上限: `%s`\n", money(*v.High))
		}
		if v.Low != nil {
			fmt.Fprintf(&b, "🔻 下限: `%s`\n", money(*v.Low))
		}
	case *rule.PercentageChange:
		fmt.Fprintf(&b, "📌 参考价: `%s`\n", money(v.ReferencePrice))
		if v.HighPct != nil {
			fmt.Fprintf(&b, "📈 涨幅预警: `%g%%`\n", *v.HighPct)
		}
		if v.LowPct != nil {
			fmt.Fprintf(&b, "📉 跌幅预警: `%g%%`\n", math.Abs(*v.LowPct))
		}
	}
	fmt.Fprintf(&b, "\n⏱ 冷却时间: %d分钟\n", task.CooldownSeconds/60)
	fmt.Fprintf(&b, "🆔 任务ID: `%d`\n\n", task.ID)
	b.WriteString("💡 使用 `/list` 查看所有任务")

	h.send(msg.Chat.ID, b.String())
	h.log.Info().Int64("user_id", msg.From.ID).Int64("task_id", task.ID).Str("symbol", symbol).Msg("monitor task created")
}

func (h *Handler) cmdList(msg *tgbotapi.Message) {
	tasks, err := h.store.ListTasksByUser(msg.From.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("listing tasks failed")
		h.send(msg.Chat.ID, "❌ 获取任务列表失败")
		return
	}
	if len(tasks) == 0 {
		h.send(msg.Chat.ID, emptyListText)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *监控任务列表* (%d)\n\n", len(tasks))
	for _, t := range tasks {
		icon := "✅"
		if t.Status == model.TaskPaused {
			icon = "⏸"
		}
		fmt.Fprintf(&b, "%s *%s*\n", icon, t.Symbol)
		switch v := t.Rule.(type) {
		case *rule.PriceThreshold:
			if v.High != nil {
				fmt.Fprintf(&b, "   🔺 上限: %s\n", money(*v.High))
			}
			if v.Low != nil {
				fmt.Fprintf(&b, "   🔻 下限: %s\n", money(*v.Low))
			}
		case *rule.PercentageChange:
			fmt.Fprintf(&b, "   📌 参考: %s\n", money(v.ReferencePrice))
			if v.HighPct != nil {
				fmt.Fprintf(&b, "   📈 涨 %g%%\n", *v.HighPct)
			}
			if v.LowPct != nil {
				fmt.Fprintf(&b, "   📉 跌 %g%%\n", math.Abs(*v.LowPct))
			}
		}
		fmt.Fprintf(&b, "   🆔 ID: `%d`\n\n", t.ID)
	}
	b.WriteString("💡 使用 `/delete <ID>` 删除任务")

	h.send(msg.Chat.ID, b.String())
}

// ownTask loads a task and checks it belongs to the caller. A missing
// task and a foreign task get the same reply, so task ids stay opaque.
func (h *Handler) ownTask(chatID int64, userID, taskID int64) *model.MonitorTask {
	task, err := h.store.GetTask(taskID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Int64("task_id", taskID).Msg("loading task failed")
	}
	if err != nil || task.UserID != userID {
		h.send(chatID, fmt.Sprintf("❌ 未找到任务ID %d", taskID))
		return nil
	}
	return task
}

func (h *Handler) cmdDelete(msg *tgbotapi.Message, args []string) {
	id, err := parseTaskID("delete", args)
	if err != nil {
		h.send(msg.Chat.ID, err.Error())
		return
	}
	task := h.ownTask(msg.Chat.ID, msg.From.ID, id)
	if task == nil {
		return
	}
	if err := h.store.SoftDeleteTask(id); err != nil {
		h.log.Error().Err(err).Int64("task_id", id).Msg("deleting task failed")
		h.send(msg.Chat.ID, "❌ 删除任务失败")
		return
	}
	h.send(msg.Chat.ID, fmt.Sprintf("✅ *任务已删除*\n\n🆔 任务ID: `%d`\n📊 币种: `%s`", id, task.Symbol))
	h.log.Info().Int64("user_id", msg.From.ID).Int64("task_id", id).Msg("monitor task deleted")
}

func (h *Handler) cmdPause(msg *tgbotapi.Message, args []string) {
	id, err := parseTaskID("pause", args)
	if err != nil {
		h.send(msg.Chat.ID, err.Error())
		return
	}
	task := h.ownTask(msg.Chat.ID, msg.From.ID, id)
	if task == nil {
		return
	}
	if task.Status == model.TaskPaused {
		h.send(msg.Chat.ID, "ℹ️ 任务已处于暂停状态")
		return
	}
	if err := h.store.UpdateTaskStatus(id, model.TaskPaused); err != nil {
		h.log.Error().Err(err).Int64("task_id", id).Msg("pausing task failed")
		h.send(msg.Chat.ID, "❌ 暂停任务失败")
		return
	}
	h.send(msg.Chat.ID, fmt.Sprintf("⏸ *任务已暂停*\n\n🆔 任务ID: `%d`\n📊 币种: `%s`\n\n💡 使用 `/resume %d` 恢复监控", id, task.Symbol, id))
}

func (h *Handler) cmdResume(msg *tgbotapi.Message, args []string) {
	id, err := parseTaskID("resume", args)
	if err != nil {
		h.send(msg.Chat.ID, err.Error())
		return
	}
	task := h.ownTask(msg.Chat.ID, msg.From.ID, id)
	if task == nil {
		return
	}
	if task.Status == model.TaskActive {
		h.send(msg.Chat.ID, "ℹ️ 任务已在运行中")
		return
	}
	if err := h.store.UpdateTaskStatus(id, model.TaskActive); err != nil {
		h.log.Error().Err(err).Int64("task_id", id).Msg("resuming task failed")
		h.send(msg.Chat.ID, "❌ 恢复任务失败")
		return
	}
	h.send(msg.Chat.ID, fmt.Sprintf("✅ *任务已恢复*\n\n🆔 任务ID: `%d`\n📊 币种: `%s`", id, task.Symbol))
}

func (h *Handler) cmdReport(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) == 0 {
		h.send(msg.Chat.ID, reportHelpText)
		return
	}
	switch strings.ToLower(args[0]) {
	case "config":
		h.reportConfig(ctx, msg, args[1:])
	case "start":
		h.reportStart(msg)
	case "stop":
		h.reportStop(msg)
	case "status":
		h.reportStatus(msg)
	default:
		h.send(msg.Chat.ID, reportHelpText)
	}
}

func (h *Handler) reportConfig(ctx context.Context, msg *tgbotapi.Message, args []string) {
	minutes, symbols, err := parseReportConfig(args)
	if err != nil {
		h.send(msg.Chat.ID, err.Error())
		return
	}
	for _, s := range symbols {
		if !h.prices.ValidateSymbol(ctx, s) {
			h.send(msg.Chat.ID, invalidSymbolText(s))
			return
		}
	}

	// Saving a config never flips the enabled flag: a fresh config stays
	// off until /report start, a running one keeps its old schedule until
	// the user stops and starts it again.
	enabled := false
	if existing, err := h.store.GetReportConfig(msg.From.ID); err == nil {
		enabled = existing.Enabled
	}
	rc := &model.ReportConfig{
		UserID:          msg.From.ID,
		Enabled:         enabled,
		IntervalMinutes: minutes,
		Symbols:         symbols,
	}
	if err := h.store.SaveReportConfig(rc); err != nil {
		h.log.Error().Err(err).Msg("saving report config failed")
		h.send(msg.Chat.ID, "❌ 配置失败，请稍后再试")
		return
	}

	h.send(msg.Chat.ID, fmt.Sprintf("✅ *汇报配置已保存*\n\n%s\n⏰ 汇报间隔: `%d` 分钟\n📊 监控币种: `%s`\n%s\n\n💡 使用 `/report start` 启动汇报",
		divider, minutes, strings.Join(symbols, ", "), divider))
	h.log.Info().Int64("user_id", msg.From.ID).Int("interval_minutes", minutes).Strs("symbols", symbols).Msg("report configured")
}

func (h *Handler) reportStart(msg *tgbotapi.Message) {
	rc, err := h.store.GetReportConfig(msg.From.ID)
	if errors.Is(err, store.ErrNotFound) {
		h.send(msg.Chat.ID, reportNotConfiguredText)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("loading report config failed")
		h.send(msg.Chat.ID, "❌ 启动失败，请稍后再试")
		return
	}
	if rc.Enabled {
		h.send(msg.Chat.ID, fmt.Sprintf("ℹ️ 汇报功能已经在运行中\n\n⏰ 汇报间隔: %d 分钟\n📊 监控币种: %s",
			rc.IntervalMinutes, strings.Join(rc.Symbols, ", ")))
		return
	}

	rc.Enabled = true
	if err := h.store.SaveReportConfig(rc); err != nil {
		h.log.Error().Err(err).Msg("saving report config failed")
		h.send(msg.Chat.ID, "❌ 启动失败，请稍后再试")
		return
	}
	if err := h.reports.Schedule(rc); err != nil {
		h.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("scheduling report failed")
		h.send(msg.Chat.ID, "❌ 启动失败，请稍后再试")
		return
	}

	h.send(msg.Chat.ID, fmt.Sprintf("✅ *汇报功能已启动*\n\n%s\n⏰ 汇报间隔: `%d` 分钟\n📊 监控币种: `%s`\n%s\n\n💡 使用 `/report stop` 可以停止汇报\n💡 使用 `/report status` 查看状态",
		divider, rc.IntervalMinutes, strings.Join(rc.Symbols, ", "), divider))
	h.log.Info().Int64("user_id", msg.From.ID).Msg("price report started")
}

func (h *Handler) reportStop(msg *tgbotapi.Message) {
	rc, err := h.store.GetReportConfig(msg.From.ID)
	if err != nil || !rc.Enabled {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			h.log.Error().Err(err).Msg("loading report config failed")
		}
		h.send(msg.Chat.ID, "ℹ️ 汇报功能未运行")
		return
	}

	rc.Enabled = false
	if err := h.store.SaveReportConfig(rc); err != nil {
		h.log.Error().Err(err).Msg("saving report config failed")
		h.send(msg.Chat.ID, "❌ 停止失败，请稍后再试")
		return
	}
	h.reports.Cancel(msg.From.ID)

	h.send(msg.Chat.ID, "✅ *汇报功能已停止*\n\n💡 使用 `/report start` 可以重新启动")
	h.log.Info().Int64("user_id", msg.From.ID).Msg("price report stopped")
}

func (h *Handler) reportStatus(msg *tgbotapi.Message) {
	rc, err := h.store.GetReportConfig(msg.From.ID)
	if errors.Is(err, store.ErrNotFound) {
		h.send(msg.Chat.ID, "📊 *汇报功能状态*\n\n❌ 尚未配置\n\n💡 使用 `/report config` 进行配置")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("loading report config failed")
		h.send(msg.Chat.ID, "❌ 获取状态失败，请稍后再试")
		return
	}

	state := "✅ 运行中"
	if !rc.Enabled {
		state = "⏸ 已停止"
	}
	h.send(msg.Chat.ID, fmt.Sprintf("📊 *汇报功能状态*\n\n%s\n📌 状态: %s\n⏰ 汇报间隔: `%d` 分钟\n📊 监控币种: `%s`\n%s\n\n💡 使用 `/report start` 启动汇报\n💡 使用 `/report stop` 停止汇报\n💡 使用 `/report config` 修改配置",
		divider, state, rc.IntervalMinutes, strings.Join(rc.Symbols, ", "), divider))
}
