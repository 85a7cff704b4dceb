package Slack

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"Pitstop/Lifecycle"
	"Pitstop/Models"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

// commandEngine is the part of the lifecycle engine reachable from chat.
type commandEngine interface {
	Today() string
	ListTasks(ctx context.Context, dateFrom, dateTo string, includeOverdue bool) ([]Models.TaskView, error)
	ListIssues(ctx context.Context, f Lifecycle.IssueFilter) ([]Models.Issue, error)
	ChangeIssueStatus(ctx context.Context, issueID uint, status, actor, key string) (*Models.Issue, error)
	AddComment(ctx context.Context, issueID uint, author, content, key string) (*Models.IssueComment, error)
}

// Commands answers "!" messages posted in the board channel.
type Commands struct {
	engine  commandEngine
	refresh func(ctx context.Context) error
}

// NewCommands builds the command set. refresh republishes the board and may be nil.
func NewCommands(engine commandEngine, refresh func(ctx context.Context) error) *Commands {
	return &Commands{engine: engine, refresh: refresh}
}

func slackActor(user string) string {
	return "slack:" + user
}

// Handle runs one command. messageTS keys the write commands so a redelivered
// event is applied once. Domain errors are answered in the reply.
func (c *Commands) Handle(ctx context.Context, text, user, messageTS string) (string, error) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", fmt.Errorf("empty command")
	}

	var reply string
	var err error
	switch strings.ToLower(parts[0]) {
	case "!status":
		reply, err = c.status(ctx)
	case "!issues":
		reply, err = c.openIssues(ctx)
	case "!progress":
		if len(parts) < 2 {
			return "Usage: `!progress [issue_id]`", nil
		}
		reply, err = c.progress(ctx, parts[1], user, messageTS)
	case "!comment":
		if len(parts) < 3 {
			return "Usage: `!comment [issue_id] [text]`", nil
		}
		reply, err = c.comment(ctx, parts[1], strings.Join(parts[2:], " "), user, messageTS)
	case "!board":
		if c.refresh == nil {
			return "Board publishing is not configured.", nil
		}
		if err := c.refresh(ctx); err != nil {
			return "", err
		}
		return "Board refreshed.", nil
	case "!help":
		return helpText, nil
	default:
		return "", fmt.Errorf("unknown command %q", parts[0])
	}

	var lerr *Models.Error
	if errors.As(err, &lerr) {
		return "Error: " + lerr.Message, nil
	}
	return reply, err
}

const helpText = "*Pitstop commands*\n" +
	"`!status` - today's tasks, overdue included\n" +
	"`!issues` - open and in-progress issues\n" +
	"`!progress [issue_id]` - start work on an issue\n" +
	"`!comment [issue_id] [text]` - comment on an issue\n" +
	"`!board` - republish the pinned board\n" +
	"`!help` - show this message"

func (c *Commands) status(ctx context.Context) (string, error) {
	today := c.engine.Today()
	tasks, err := c.engine.ListTasks(ctx, today, today, true)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return fmt.Sprintf("*Tasks for %s*\nNothing scheduled.", today), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Tasks for %s*\n", today)
	for _, t := range tasks {
		fmt.Fprintf(&b, "#%d %s %s @ %s: %s", t.ID, t.TaskType, t.EquipmentName, orStorage(t.WorkstationName), t.Status)
		if t.Overdue {
			fmt.Fprintf(&b, " (overdue since %s)", t.DueDate)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Commands) openIssues(ctx context.Context) (string, error) {
	var issues []Models.Issue
	for _, status := range []string{Models.IssueOpen, Models.IssueInProgress} {
		list, err := c.engine.ListIssues(ctx, Lifecycle.IssueFilter{Status: status})
		if err != nil {
			return "", err
		}
		issues = append(issues, list...)
	}
	if len(issues) == 0 {
		return "No open issues.", nil
	}
	var b strings.Builder
	b.WriteString("*Open issues*\n")
	for _, i := range issues {
		fmt.Fprintf(&b, "#%d [%s] %s (%s, %s)\n", i.ID, i.Severity, i.Title, orStorage(i.WorkstationName), i.Status)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Commands) progress(ctx context.Context, rawID, user, key string) (string, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(rawID, "#"), 10, 64)
	if err != nil {
		return "Issue id must be a number.", nil
	}
	issue, err := c.engine.ChangeIssueStatus(ctx, uint(id), Models.IssueInProgress, slackActor(user), key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Issue #%d is now %s.", issue.ID, issue.Status), nil
}

func (c *Commands) comment(ctx context.Context, rawID, content, user, key string) (string, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(rawID, "#"), 10, 64)
	if err != nil {
		return "Issue id must be a number.", nil
	}
	if _, err := c.engine.AddComment(ctx, uint(id), slackActor(user), content, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("Comment added to issue #%d.", id), nil
}

func orStorage(name string) string {
	if name == "" {
		return "storage"
	}
	return name
}

// Listen answers commands in channel over Socket Mode until ctx ends.
func Listen(ctx context.Context, botToken, appToken, channel string, commands *Commands, log *zap.Logger) error {
	if botToken == "" || appToken == "" {
		return fmt.Errorf("SLACK_TOKEN and SLACK_APP_TOKEN must be set")
	}
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	client := socketmode.New(api)

	go func() {
		for envelope := range client.Events {
			if envelope.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			event, ok := envelope.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			client.Ack(*envelope.Request)
			if event.Type != slackevents.CallbackEvent {
				continue
			}
			msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
			if !ok || msg.BotID != "" || msg.Channel != channel || !strings.HasPrefix(msg.Text, "!") {
				continue
			}

			reply, err := commands.Handle(ctx, msg.Text, msg.User, msg.TimeStamp)
			if err != nil {
				log.Warn("slack command failed", zap.String("text", msg.Text), zap.String("user", msg.User), zap.Error(err))
				continue
			}
			if _, _, err := api.PostMessageContext(ctx, channel, slack.MsgOptionText(reply, false), slack.MsgOptionTS(msg.TimeStamp)); err != nil {
				log.Warn("could not reply", zap.Error(err))
			}
		}
	}()

	log.Info("slack command listener starting", zap.String("channel", channel))
	return client.RunContext(ctx)
}
