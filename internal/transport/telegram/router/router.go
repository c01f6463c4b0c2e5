package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Core is the reminder API the router dispatches into. Implemented by the
// scheduler service.
type Core interface {
	CreateFromText(ctx context.Context, ownerID, chatID int64, text string) (*Reminder, error)
	List(ctx context.Context, ownerID int64) ([]*Reminder, error)
	Complete(ctx context.Context, id string, ownerID int64) error
	Delete(ctx context.Context, id string, ownerID int64) error
	Delay(ctx context.Context, id string, ownerID int64) (*Reminder, error)
	Snooze(ctx context.Context, id string, ownerID int64) (*Reminder, error)
	EditText(ctx context.Context, id string, ownerID int64, text string) (*Reminder, error)
}

type HandlerFunc func(ctx context.Context, req *Request) error

// Request carries one parsed update through the middleware chain.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Payload string // callback payload (reminder id)
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

type command struct {
	name        string
	description string
	inMenu      bool
	handle      HandlerFunc
}

// Router dispatches Telegram updates to reminder commands. Slash commands
// map to handlers; any other private-chat text is treated as a reminder to
// create. Updates run on a bounded worker pool so one slow handler cannot
// block the poll loop.
type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	core    Core

	commands  map[string]command
	menu      []kit.BotCommand
	callbacks map[string]HandlerFunc

	jobs      chan func()
	closeOnce sync.Once
}

func New(log logx.Logger, adapter kit.Adapter, core Core) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:     log,
		adapter: adapter,
		core:    core,
		jobs:    make(chan func(), 256),
	}
	r.register()
	return r
}

// DispatchLoop consumes updates until ctx is done or the channel closes.
// Blocks; run it on its own goroutine.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-r.jobs:
					if !ok {
						return
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in update job",
									logx.Any("panic", rec),
									logx.String("stack", string(debug.Stack())),
								)
							}
						}()
						job()
					}()
				}
			}
		}()
	}
	r.log.Info("dispatcher started", logx.Int("workers", workers))

	// Best-effort menu publish; non-fatal.
	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := up.UpdateMenuCommands(mctx, r.menu); err != nil {
			r.log.Warn("menu update failed", logx.Err(err))
		}
		cancel()
	}

	defer func() {
		r.closeOnce.Do(func() { close(r.jobs) })
		wg.Wait()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID},
		FromID:  msg.FromID,
		Adapter: r.adapter,
		ReqID:   newReqID(),
	}

	var handler HandlerFunc
	if strings.HasPrefix(text, "/") {
		parts := strings.Fields(text)
		word := strings.TrimPrefix(parts[0], "/")
		if i := strings.IndexByte(word, '@'); i >= 0 {
			word = word[:i]
		}
		cmd, ok := r.commands[strings.ToLower(word)]
		if !ok {
			r.enqueueReply(ctx, req.Chat, "未知命令，试试 /help")
			return
		}
		req.Command = cmd.name
		req.Args = parts[1:]
		handler = cmd.handle
	} else {
		// Free text in a group chat is other people's conversation, not a
		// reminder. Private chats treat every message as a create request.
		if msg.IsGroup {
			return
		}
		req.Command = "create"
		req.Args = []string{text}
		handler = r.handleCreate
	}

	r.enqueue(ctx, req, handler)
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	action, id, ok := decodeCallback(cb.Data)
	if !ok {
		return
	}
	handler, known := r.callbacks[action]
	if !known {
		return
	}

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: cb.ChatID},
		FromID:  cb.FromID,
		Command: "cb:" + action,
		Payload: id,
		Adapter: r.adapter,
		ReqID:   newReqID(),
	}
	r.enqueue(ctx, req, handler)
}

func (r *Router) enqueue(ctx context.Context, req *Request, h HandlerFunc) {
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
		logx.String("cmd", req.Command),
	)

	final := Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(30*time.Second),
	)

	ok := r.tryEnqueue(func() { _ = final(ctx, req) })
	if !ok {
		r.enqueueReply(ctx, req.Chat, "忙不过来了，请稍后再试")
	}
}

func (r *Router) enqueueReply(ctx context.Context, chat kit.ChatTarget, text string) {
	_, err := r.adapter.SendText(ctx, chat, text, nil)
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", chat.ChatID), logx.Err(err))
	}
}

// tryEnqueue is panic-safe against the jobs channel closing during shutdown.
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}
