package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"cartellino/internal/shift"
	"cartellino/internal/tracker"
	kit "cartellino/internal/transport"
	logx "cartellino/pkg/logx"
)

const (
	msgWelcome       = "Hi! I'm the cartellino bot. Use the buttons below to find out when your work shift ends."
	msgAskStart      = "Please enter the start time as HH:MM."
	msgAskLeisure    = "Enter the leisure time as HH:MM."
	msgBadFormat     = "Invalid format. Please enter the time as HH:MM."
	msgNoStart       = "Start time is not set. Use \"" + BtnArrived + "\" or /set_start to set it."
	msgNoStartReport = "Start time not provided and no start time stored for today.\nUse \"" + BtnArrived + "\" or /set_start to store it."
	msgOvertimeDone  = "The liquidated overtime threshold has already been reached!"
	msgCanceled      = "Canceled."
	msgUnknown       = "Unknown command. Try /help"
	msgFailed        = "Something went wrong, please try again later."
)

// handle runs on the chat's worker, so conversation state changes of one
// chat never race.
func (b *Bot) handle(ctx context.Context, req *Request) error {
	chatID := req.Chat.ChatID
	if cmd, args, ok := parseCommand(req.Text); ok {
		req.Route, req.Args = "/"+cmd, args
		return b.command(ctx, req, cmd)
	}
	if h := b.button(req.Text); h != nil {
		// a button press abandons any pending question
		b.conv.reset(chatID)
		req.Route = req.Text
		return h(ctx, req)
	}
	switch st := b.conv.get(chatID); st {
	case stateAwaitStart:
		req.Route = st.String()
		return b.onStartInput(ctx, req)
	case stateAwaitLeisure:
		req.Route = st.String()
		return b.onLeisureInput(ctx, req)
	}
	req.Route = "text"
	return b.reply(ctx, req, "Use the buttons below or /help.")
}

func (b *Bot) command(ctx context.Context, req *Request, cmd string) error {
	chatID := req.Chat.ChatID
	switch cmd {
	case "start":
		b.conv.reset(chatID)
		if b.chats != nil {
			name := req.Update.Message.FromName
			if u := req.Update.Message.FromUsername; u != "" {
				name = "@" + u
			}
			if err := b.chats.StoreChat(ctx, chatID, name); err != nil {
				req.logger(b.log).Warn("store chat failed", logx.Err(err))
			}
		}
		return b.reply(ctx, req, msgWelcome)
	case "set_start":
		b.conv.reset(chatID)
		if len(req.Args) == 1 {
			req.Text = req.Args[0]
			return b.onStartInput(ctx, req)
		}
		return b.onSetStart(ctx, req)
	case "work_end":
		b.conv.reset(chatID)
		return b.onWorkEnd(ctx, req)
	case "cancel":
		b.conv.reset(chatID)
		return b.reply(ctx, req, msgCanceled)
	case "help":
		return b.send(ctx, req, helpText(), nil)
	default:
		return b.send(ctx, req, msgUnknown, nil)
	}
}

func (b *Bot) button(text string) HandlerFunc {
	switch text {
	case BtnArrived:
		return b.onArrived
	case BtnSetStart:
		return b.onSetStart
	case BtnSetLeisure:
		return b.onSetLeisure
	case BtnWorkEnd:
		return b.onWorkEnd
	case BtnOvertime:
		return b.onOvertime
	}
	return nil
}

func (b *Bot) onArrived(ctx context.Context, req *Request) error {
	start, already, err := b.tr.Arrive(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if already {
		return b.reply(ctx, req, "Start time is already set for today: "+start)
	}
	if err := b.reply(ctx, req, "Welcome! Start time set to: "+start); err != nil {
		return err
	}
	return b.notifyWorkTurn(ctx, req)
}

func (b *Bot) onSetStart(ctx context.Context, req *Request) error {
	start, ok, err := b.tr.StartTime(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if ok {
		return b.reply(ctx, req, "Start time is already set for today: "+start)
	}
	b.conv.set(req.Chat.ChatID, stateAwaitStart)
	return b.send(ctx, req, msgAskStart, nil)
}

func (b *Bot) onStartInput(ctx context.Context, req *Request) error {
	err := b.tr.SetStartTime(ctx, req.Chat.ChatID, req.Text)
	switch {
	case errors.Is(err, shift.ErrInvalidFormat):
		return b.send(ctx, req, msgBadFormat, nil)
	case errors.Is(err, tracker.ErrStartAlreadySet):
		b.conv.reset(req.Chat.ChatID)
		return b.reply(ctx, req, "Start time is already set for today.")
	case err != nil:
		b.conv.reset(req.Chat.ChatID)
		return err
	}
	b.conv.reset(req.Chat.ChatID)
	if err := b.reply(ctx, req, "Start time set to: "+req.Text); err != nil {
		return err
	}
	return b.notifyWorkTurn(ctx, req)
}

func (b *Bot) onSetLeisure(ctx context.Context, req *Request) error {
	b.conv.set(req.Chat.ChatID, stateAwaitLeisure)
	return b.send(ctx, req, msgAskLeisure, nil)
}

func (b *Bot) onLeisureInput(ctx context.Context, req *Request) error {
	err := b.tr.SetLeisure(ctx, req.Chat.ChatID, req.Text)
	if errors.Is(err, shift.ErrInvalidFormat) {
		return b.send(ctx, req, msgBadFormat, nil)
	}
	b.conv.reset(req.Chat.ChatID)
	if err != nil {
		return err
	}
	if err := b.reply(ctx, req, "Leisure time set to: "+req.Text); err != nil {
		return err
	}
	return b.notifyWorkTurn(ctx, req)
}

// notifyWorkTurn (re)schedules the end-of-shift message and tells the user when.
func (b *Bot) notifyWorkTurn(ctx context.Context, req *Request) error {
	end, err := b.tr.NotifyShiftEnd(ctx, req.Chat.ChatID, req.Chat)
	if errors.Is(err, tracker.ErrMissingStartTime) {
		return b.send(ctx, req, msgNoStart, nil)
	}
	if err != nil {
		return err
	}
	return b.send(ctx, req, fmt.Sprintf("I'll wait until the end of the work turn and notify you at %s.", end), nil)
}

func (b *Bot) onWorkEnd(ctx context.Context, req *Request) error {
	r, err := b.tr.WorkEnd(ctx, req.Chat.ChatID)
	if errors.Is(err, tracker.ErrMissingStartTime) {
		return b.reply(ctx, req, msgNoStartReport)
	}
	if err != nil {
		return err
	}
	return b.send(ctx, req, "<pre>"+html.EscapeString(r.String())+"</pre>", &kit.SendOptions{ParseMode: "HTML"})
}

func (b *Bot) onOvertime(ctx context.Context, req *Request) error {
	at, reached, err := b.tr.NotifyOvertime(ctx, req.Chat.ChatID, req.Chat)
	switch {
	case errors.Is(err, tracker.ErrMissingStartTime):
		return b.reply(ctx, req, "Start time is not set. Please set the start time first.")
	case err != nil:
		return err
	case reached:
		return b.send(ctx, req, msgOvertimeDone, nil)
	}
	return b.send(ctx, req, fmt.Sprintf("I'll notify you when the liquidated overtime threshold is reached at %s.", at.Format("15:04")), nil)
}

// reply sends text with the chat's current keyboard.
func (b *Bot) reply(ctx context.Context, req *Request, text string) error {
	has, err := b.tr.HasStartTime(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	return b.send(ctx, req, text, &kit.SendOptions{Keyboard: Keyboard(has)})
}

func (b *Bot) send(ctx context.Context, req *Request, text string, opt *kit.SendOptions) error {
	_, err := b.adapter.SendText(ctx, req.Chat, text, opt)
	return err
}

func helpText() string {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	sb.WriteString("/start - show the keyboard\n")
	sb.WriteString("/set_start - set today's start time (HH:MM)\n")
	sb.WriteString("/work_end - when does the shift end\n")
	sb.WriteString("/cancel - cancel the current question\n\n")
	sb.WriteString("Buttons:\n")
	for _, l := range []string{
		BtnArrived + " - start now",
		BtnSetStart + " - start at a given time",
		BtnSetLeisure + " - time to deduct today",
		BtnWorkEnd + " - remaining time",
		BtnOvertime + " - remind me when overtime counts",
	} {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
