// ABOUTME: Interactive command loop for the terminal support client
// ABOUTME: Renders conversations and messages, forwards input to the session

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/ycyw/support-chat/internal/chat"
	"github.com/ycyw/support-chat/internal/session"
	"github.com/ycyw/support-chat/internal/transport"
)

var (
	promptColor  = color.New(color.FgGreen, color.Bold)
	selfColor    = color.New(color.FgCyan)
	otherColor   = color.New(color.FgWhite, color.Bold)
	timeColor    = color.New(color.FgHiBlack)
	noticeColor  = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	headerColor  = color.New(color.FgMagenta, color.Bold)
	statusColors = map[chat.ConversationStatus]*color.Color{
		chat.StatusOpen:    color.New(color.FgGreen),
		chat.StatusPending: color.New(color.FgYellow),
		chat.StatusClosed:  color.New(color.FgHiBlack),
	}
)

// runRepl drives the interactive loop until the context is cancelled
// or the user quits. Inbound events render between prompts.
func runRepl(ctx context.Context, sess *session.Session) error {
	go renderEvents(ctx, sess)

	if _, err := sess.Refresh(ctx); err != nil {
		errorColor.Fprintf(os.Stderr, "loading conversations: %v\n", err)
	} else {
		renderConversations(sess.Conversations(), sess.Viewer().IsEmployee())
	}
	fmt.Println(`Type /help for commands.`)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		promptColor.Print(promptFor(sess))
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, sess, strings.TrimSpace(line))
			if err != nil {
				errorColor.Printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func promptFor(sess *session.Session) string {
	if current := sess.Current(); current != nil {
		return fmt.Sprintf("[#%d] > ", current.ID)
	}
	return "> "
}

func handleLine(ctx context.Context, sess *session.Session, line string) (quit bool, err error) {
	switch {
	case line == "":
		return false, nil
	case !strings.HasPrefix(line, "/"):
		return false, sendLine(ctx, sess, line)
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "help":
		printHelp(sess.Viewer().IsEmployee())
	case "list":
		conversations, err := sess.Refresh(ctx)
		if err != nil {
			return false, err
		}
		renderConversations(conversations, sess.Viewer().IsEmployee())
	case "unassigned":
		conversations, err := sess.Unassigned(ctx)
		if err != nil {
			return false, err
		}
		renderConversations(conversations, true)
	case "open":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return false, fmt.Errorf("usage: /open <conversation id>")
		}
		conversation, messages, err := sess.Select(ctx, id)
		if err != nil {
			return false, err
		}
		renderConversationHeader(conversation)
		for _, msg := range messages {
			renderMessage(msg, sess.Viewer().UserID)
		}
	case "new":
		if arg == "" {
			return false, fmt.Errorf("usage: /new <subject>")
		}
		conversation, err := sess.Create(ctx, arg)
		if err != nil {
			return false, err
		}
		renderConversationHeader(conversation)
	case "assign":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return false, fmt.Errorf("usage: /assign <conversation id>")
		}
		conversation, err := sess.Assign(ctx, id)
		if err != nil {
			return false, err
		}
		noticeColor.Printf("assigned conversation #%d to you\n", conversation.ID)
	case "close":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return false, fmt.Errorf("usage: /close <conversation id>")
		}
		conversation, err := sess.Close(ctx, id)
		if err != nil {
			return false, err
		}
		noticeColor.Printf("closed conversation #%d\n", conversation.ID)
	case "back":
		sess.Back()
	case "status":
		renderStatus(sess)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", cmd)
	}
	return false, nil
}

func sendLine(ctx context.Context, sess *session.Session, content string) error {
	msg, err := sess.Send(ctx, content)
	if err != nil {
		return err
	}
	renderMessage(*msg, sess.Viewer().UserID)
	if msg.IsLocal() {
		timeColor.Println("  (sending...)")
	}
	return nil
}

// renderEvents prints inbound messages and connectivity changes as the
// session emits them.
func renderEvents(ctx context.Context, sess *session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sess.Events():
			fmt.Println()
			switch event.Kind {
			case session.EventMessage:
				renderMessage(*event.Message, sess.Viewer().UserID)
			case session.EventConnectivity:
				switch event.State {
				case transport.StateConnected:
					noticeColor.Println("● connected")
				case transport.StateConnecting:
					noticeColor.Println("◌ reconnecting...")
				case transport.StateDisconnected:
					noticeColor.Println("○ disconnected (messages will be sent via API)")
				}
			}
			promptColor.Print(promptFor(sess))
		}
	}
}

func renderConversations(conversations []chat.Conversation, employeeView bool) {
	if len(conversations) == 0 {
		fmt.Println("No conversations. Start one with /new <subject>.")
		return
	}
	headerColor.Println("Conversations")
	for _, c := range conversations {
		statusColor, ok := statusColors[c.Status]
		if !ok {
			statusColor = color.New(color.FgWhite)
		}
		fmt.Printf("  #%-4d %s", c.ID, statusColor.Sprintf("%-8s", c.Status))
		fmt.Printf(" %s", c.Subject)
		if employeeView && c.CustomerName != "" {
			timeColor.Printf("  from %s", c.CustomerName)
		}
		if c.EmployeeName != nil {
			timeColor.Printf("  with %s", *c.EmployeeName)
		}
		if c.UnreadCount > 0 {
			noticeColor.Printf("  [%d unread]", c.UnreadCount)
		}
		fmt.Println()
	}
}

func renderConversationHeader(c *chat.Conversation) {
	headerColor.Printf("── #%d %s ", c.ID, c.Subject)
	if statusColor, ok := statusColors[c.Status]; ok {
		statusColor.Printf("(%s)", c.Status)
	}
	fmt.Println()
}

func renderMessage(msg chat.Message, viewerID int64) {
	timeColor.Printf("%s ", msg.SentAt.Local().Format("15:04"))
	name := msg.SenderName
	if name == "" {
		name = fmt.Sprintf("user %d", msg.SenderID)
	}
	if msg.SenderID == viewerID {
		selfColor.Printf("%s: ", name)
	} else {
		otherColor.Printf("%s: ", name)
	}
	fmt.Println(msg.Content)
}

func renderStatus(sess *session.Session) {
	state := sess.ConnectionState()
	fmt.Printf("connection: %s\n", state)
	if current := sess.Current(); current != nil {
		fmt.Printf("selected:   #%d %s (%s)\n", current.ID, current.Subject, current.Status)
	} else {
		fmt.Println("selected:   none")
	}
	if unread := sess.TotalUnread(); unread > 0 {
		noticeColor.Printf("unread:     %d\n", unread)
	}
}

func printHelp(employee bool) {
	fmt.Println("Commands:")
	fmt.Println("  /list             List your conversations")
	if employee {
		fmt.Println("  /unassigned       List conversations awaiting an employee")
		fmt.Println("  /assign <id>      Assign a conversation to yourself")
		fmt.Println("  /close <id>       Close a conversation")
	}
	fmt.Println("  /open <id>        Open a conversation")
	fmt.Println("  /new <subject>    Start a new conversation")
	fmt.Println("  /back             Leave the current conversation")
	fmt.Println("  /status           Show connection and selection state")
	fmt.Println("  /quit             Exit")
	fmt.Println()
	fmt.Println("Anything else you type is sent to the open conversation.")
}
