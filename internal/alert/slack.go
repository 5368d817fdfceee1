package alert

import (
	"context"
	"fmt"

	"bizpulse/internal/models"

	api "github.com/slack-go/slack"
)

// SlackSink posts alerts to a Slack channel.
type SlackSink struct {
	client         *api.Client
	defaultChannel string
}

// NewSlackSink builds a sink; an empty apiURL uses the public Slack API.
func NewSlackSink(token, apiURL, defaultChannel string) *SlackSink {
	var opts []api.Option
	if apiURL != "" {
		opts = append(opts, api.OptionAPIURL(apiURL))
	}
	return &SlackSink{
		client:         api.New(token, opts...),
		defaultChannel: defaultChannel,
	}
}

func (s *SlackSink) Name() string { return "slack" }

// SendAlert posts to the tenant channel, falling back to the default one.
// With no channel configured the alert is skipped.
func (s *SlackSink) SendAlert(ctx context.Context, alert models.SyncAlert) error {
	channel := alert.SlackChannel
	if channel == "" {
		channel = s.defaultChannel
	}
	if channel == "" {
		return nil
	}

	if _, _, err := s.client.PostMessageContext(ctx, channel,
		api.MsgOptionText(subject(alert), false),
		api.MsgOptionBlocks(buildBlocks(alert)...),
	); err != nil {
		return fmt.Errorf("post slack message to %s: %w", channel, err)
	}
	return nil
}

func buildBlocks(alert models.SyncAlert) []api.Block {
	heading := api.NewTextBlockObject("plain_text", subject(alert), true, false)
	fields := []*api.TextBlockObject{
		api.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Tenant:*\n%s", alert.BusinessEntityID), false, false),
		api.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Job type:*\n%s", alert.JobType), false, false),
		api.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Retries:*\n%d", alert.RetryCount), false, false),
		api.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Failed at:*\n%s", alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")), false, false),
	}
	errText := api.NewTextBlockObject("plain_text", fmt.Sprintf("Error:\n%s", alert.Error), false, false)

	return []api.Block{
		api.NewHeaderBlock(heading),
		api.NewSectionBlock(nil, fields, nil),
		api.NewContextBlock("", errText),
	}
}
