package router

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"remindbot/pkg/tgui"
)

// Callback data is "rm:<action>:<reminder id>". Telegram caps callback data
// at 64 bytes; a uuid plus the prefix fits comfortably.
const callbackPrefix = "rm"

func encodeCallback(action, id string) string {
	data := callbackPrefix + ":" + action + ":" + id
	if len(data) > tgui.MaxCallbackDataLen {
		// Unreachable with uuid ids; truncating would corrupt the id, so
		// let decode reject it instead.
		return data[:tgui.MaxCallbackDataLen]
	}
	return data
}

func decodeCallback(data string) (action, id string, ok bool) {
	data = strings.TrimPrefix(strings.TrimSpace(data), "\f")
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// NotificationMarkup builds the inline buttons attached to a fired-reminder
// message. Installed on the notifier by the app wiring.
func NotificationMarkup(id string) *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("完成 ✅", encodeCallback("done", id))).
		Row(
			tgui.Btn("延后 10 分钟", encodeCallback("delay", id)),
			tgui.Btn("30 分钟后再响", encodeCallback("snooze", id)),
		).
		Markup()
}
