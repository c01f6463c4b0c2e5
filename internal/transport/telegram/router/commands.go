package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

// Reminder re-exported for the Core interface.
type Reminder = reminder.Reminder

func (r *Router) register() {
	cmds := []command{
		{name: "start", description: "开始使用", handle: r.handleHelp},
		{name: "help", description: "使用说明", inMenu: true, handle: r.handleHelp},
		{name: "remind", description: "创建提醒", inMenu: true, handle: r.handleRemind},
		{name: "list", description: "查看提醒", inMenu: true, handle: r.handleList},
		{name: "done", description: "完成提醒", inMenu: true, handle: r.handleDone},
		{name: "del", description: "删除提醒", inMenu: true, handle: r.handleDelete},
		{name: "delay", description: "延后提醒", handle: r.handleDelay},
		{name: "snooze", description: "稍后再响", handle: r.handleSnooze},
		{name: "edit", description: "修改提醒", handle: r.handleEdit},
	}

	r.commands = make(map[string]command, len(cmds))
	for _, c := range cmds {
		r.commands[c.name] = c
		if c.inMenu {
			r.menu = append(r.menu, kit.BotCommand{Command: c.name, Description: c.description})
		}
	}

	r.callbacks = map[string]HandlerFunc{
		"done":   r.cbDone,
		"delay":  r.cbDelay,
		"snooze": r.cbSnooze,
	}
}

const helpText = `直接发一句话就能创建提醒，例如：
  明天下午3点提醒我开会
  30分钟后喝水
  每天晚上10点记得吃药 #健康

支持 #标签、优先级词（紧急/重要）和 备注：xxx。

命令：
  /list — 查看当前提醒
  /done <序号> — 完成
  /del <序号> — 删除
  /delay <序号> — 延后 10 分钟
  /snooze <序号> — 稍后 30 分钟再响
  /edit <序号> <新内容> — 重新描述这条提醒
  /remind <内容> — 在群里创建提醒`

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, helpText, &kit.SendOptions{DisablePreview: true})
	return err
}

func (r *Router) handleCreate(ctx context.Context, req *Request) error {
	return r.create(ctx, req, req.Args[0])
}

func (r *Router) handleRemind(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		r.enqueueReply(ctx, req.Chat, "用法：/remind 明天下午3点开会")
		return nil
	}
	return r.create(ctx, req, strings.Join(req.Args, " "))
}

func (r *Router) create(ctx context.Context, req *Request, text string) error {
	rm, err := r.core.CreateFromText(ctx, req.FromID, req.Chat.ChatID, text)
	if err != nil {
		if reminder.IsRejection(err) {
			r.enqueueReply(ctx, req.Chat, rejectionText(err))
			return nil
		}
		r.enqueueReply(ctx, req.Chat, "出错了，请稍后再试")
		return err
	}

	var b strings.Builder
	b.WriteString("✅ 已创建提醒\n")
	b.WriteString(rm.Message)
	b.WriteString("\n⏰ ")
	b.WriteString(formatDue(rm))
	if rm.Recurrence != reminder.RecurNone {
		b.WriteString("（")
		b.WriteString(recurrenceLabel(rm.Recurrence))
		b.WriteString("）")
	}
	_, err = req.Adapter.SendText(ctx, req.Chat, b.String(), nil)
	return err
}

func (r *Router) handleList(ctx context.Context, req *Request) error {
	items, err := r.listSorted(ctx, req.FromID)
	if err != nil {
		r.enqueueReply(ctx, req.Chat, "出错了，请稍后再试")
		return err
	}
	if len(items) == 0 {
		r.enqueueReply(ctx, req.Chat, "当前没有提醒。直接发一句话即可创建。")
		return nil
	}

	var b strings.Builder
	b.WriteString("📋 当前提醒\n")
	for i, rm := range items {
		fmt.Fprintf(&b, "%d. %s  %s", i+1, formatDue(rm), tgui.TruncRunes(rm.Message, 60))
		if rm.Recurrence != reminder.RecurNone {
			b.WriteString("（")
			b.WriteString(recurrenceLabel(rm.Recurrence))
			b.WriteString("）")
		}
		if rm.SentCount > 0 {
			fmt.Fprintf(&b, " [已提醒%d次]", rm.SentCount)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n用 /done /del /delay /snooze 加序号操作")

	// A long list can exceed Telegram's message cap; send it in chunks.
	opt := &kit.SendOptions{DisablePreview: true}
	for _, chunk := range tgui.SplitText(b.String(), 0) {
		if _, err := req.Adapter.SendText(ctx, req.Chat, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) handleDone(ctx context.Context, req *Request) error {
	return r.refOp(ctx, req, "done", func(id string) error {
		return r.core.Complete(ctx, id, req.FromID)
	}, "✅ 已完成")
}

func (r *Router) handleDelete(ctx context.Context, req *Request) error {
	return r.refOp(ctx, req, "del", func(id string) error {
		return r.core.Delete(ctx, id, req.FromID)
	}, "🗑 已删除")
}

func (r *Router) handleDelay(ctx context.Context, req *Request) error {
	return r.refOp(ctx, req, "delay", func(id string) error {
		_, err := r.core.Delay(ctx, id, req.FromID)
		return err
	}, "⏳ 已延后 10 分钟")
}

func (r *Router) handleSnooze(ctx context.Context, req *Request) error {
	return r.refOp(ctx, req, "snooze", func(id string) error {
		_, err := r.core.Snooze(ctx, id, req.FromID)
		return err
	}, "😴 30 分钟后再提醒")
}

func (r *Router) handleEdit(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		r.enqueueReply(ctx, req.Chat, "用法：/edit <序号> <新内容>（序号见 /list）")
		return nil
	}
	rm, err := r.resolveRef(ctx, req.FromID, req.Args[0])
	if err != nil {
		r.enqueueReply(ctx, req.Chat, rejectionText(err))
		return nil
	}
	text := strings.Join(req.Args[1:], " ")
	updated, err := r.core.EditText(ctx, rm.ID, req.FromID, text)
	if err != nil {
		if reminder.IsRejection(err) || errors.Is(err, reminder.ErrNotFound) || errors.Is(err, reminder.ErrNotOwner) {
			r.enqueueReply(ctx, req.Chat, rejectionText(err))
			return nil
		}
		r.enqueueReply(ctx, req.Chat, "出错了，请稍后再试")
		return err
	}
	r.enqueueReply(ctx, req.Chat, "✏️ 已更新提醒\n"+updated.Message+"\n⏰ "+formatDue(updated))
	return nil
}

// refOp resolves the positional reference in the first argument and runs op
// against the resolved reminder id.
func (r *Router) refOp(ctx context.Context, req *Request, name string, op func(id string) error, okText string) error {
	if len(req.Args) == 0 {
		r.enqueueReply(ctx, req.Chat, "用法：/"+name+" <序号>（序号见 /list）")
		return nil
	}
	rm, err := r.resolveRef(ctx, req.FromID, req.Args[0])
	if err != nil {
		r.enqueueReply(ctx, req.Chat, rejectionText(err))
		return nil
	}
	if err := op(rm.ID); err != nil {
		if reminder.IsRejection(err) || errors.Is(err, reminder.ErrNotFound) || errors.Is(err, reminder.ErrNotOwner) {
			r.enqueueReply(ctx, req.Chat, rejectionText(err))
			return nil
		}
		r.enqueueReply(ctx, req.Chat, "出错了，请稍后再试")
		return err
	}
	r.enqueueReply(ctx, req.Chat, okText+"："+rm.Message)
	return nil
}

// resolveRef accepts a 1-based index from the /list ordering, or an id
// prefix of at least 4 characters.
func (r *Router) resolveRef(ctx context.Context, ownerID int64, arg string) (*Reminder, error) {
	items, err := r.listSorted(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if n, nerr := strconv.Atoi(arg); nerr == nil {
		if n < 1 || n > len(items) {
			return nil, reminder.ErrNotFound
		}
		return items[n-1], nil
	}
	if len(arg) >= 4 {
		for _, rm := range items {
			if strings.HasPrefix(rm.ID, arg) {
				return rm, nil
			}
		}
	}
	return nil, reminder.ErrNotFound
}

func (r *Router) listSorted(ctx context.Context, ownerID int64) ([]*Reminder, error) {
	items, err := r.core.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].NextWakeAt().Before(items[j].NextWakeAt())
	})
	return items, nil
}

func (r *Router) cbDone(ctx context.Context, req *Request) error {
	return r.cbOp(ctx, req, func(id string) error {
		return r.core.Complete(ctx, id, req.FromID)
	}, "已完成 ✅")
}

func (r *Router) cbDelay(ctx context.Context, req *Request) error {
	return r.cbOp(ctx, req, func(id string) error {
		_, err := r.core.Delay(ctx, id, req.FromID)
		return err
	}, "延后 10 分钟 ⏳")
}

func (r *Router) cbSnooze(ctx context.Context, req *Request) error {
	return r.cbOp(ctx, req, func(id string) error {
		_, err := r.core.Snooze(ctx, id, req.FromID)
		return err
	}, "30 分钟后再响 😴")
}

func (r *Router) cbOp(ctx context.Context, req *Request, op func(id string) error, okText string) error {
	cb := req.Update.Callback
	if cb == nil || req.Payload == "" {
		return nil
	}
	if err := op(req.Payload); err != nil {
		text := "操作失败"
		if errors.Is(err, reminder.ErrNotFound) {
			text = "该提醒已不存在"
		} else if errors.Is(err, reminder.ErrNotOwner) {
			text = "这不是你的提醒"
		}
		_ = req.Adapter.AnswerCallback(ctx, cb.ID, text)
		return nil
	}
	// A second tap on the same button answers "该提醒已不存在": the op above
	// archived or re-armed the reminder, so no stale-state cleanup is needed.
	_ = req.Adapter.AnswerCallback(ctx, cb.ID, okText)
	return nil
}

func rejectionText(err error) string {
	if errors.Is(err, reminder.ErrNoTime) {
		return "没有识别出时间，试试「明天下午3点开会」或「30分钟后喝水」"
	}
	if errors.Is(err, reminder.ErrNotFound) {
		return "没有找到这条提醒，序号见 /list"
	}
	if errors.Is(err, reminder.ErrNotOwner) {
		return "这不是你的提醒"
	}
	var qe *reminder.QuotaError
	if errors.As(err, &qe) {
		if qe.Kind == "daily" {
			return fmt.Sprintf("今天创建的提醒太多了（%d/%d），明天再来吧", qe.Current, qe.Limit)
		}
		return fmt.Sprintf("进行中的提醒太多了（%d/%d），先完成几条吧", qe.Current, qe.Limit)
	}
	var ve *reminder.ValidationError
	if errors.As(err, &ve) {
		switch ve.Field {
		case "message":
			return "提醒内容为空或太长了（最多 1000 字）"
		case "due_at":
			return "提醒时间必须在将来"
		case "tags":
			return "标签太多了（最多 10 个）"
		case "notes":
			return "备注太长了（最多 500 字）"
		}
		return "内容不合法：" + ve.Field
	}
	return "操作失败，请稍后再试"
}

func formatDue(rm *Reminder) string {
	return rm.NextWakeAt().Format("01-02 15:04")
}

func recurrenceLabel(p reminder.Pattern) string {
	switch p {
	case reminder.RecurDaily:
		return "每天"
	case reminder.RecurWeekly:
		return "每周"
	case reminder.RecurMonthly:
		return "每月"
	case reminder.RecurYearly:
		return "每年"
	case reminder.RecurWorkdays:
		return "工作日"
	case reminder.RecurWeekends:
		return "周末"
	}
	return string(p)
}

func newReqID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
