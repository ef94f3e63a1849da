// Package notify announces finished runs.
package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/slack-go/slack"

	"quotescraper/models"
)

// Summary is what a run notification carries.
type Summary struct {
	RunID    string
	Source   string
	Counts   models.Counts
	Artifact string
	Elapsed  time.Duration
	Err      error
}

type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Summary) error { return nil }

// Slack posts the summary to an incoming webhook.
type Slack struct {
	webhookURL string
}

func NewSlack(webhookURL string) *Slack {
	return &Slack{webhookURL: webhookURL}
}

func (s *Slack) Notify(ctx context.Context, sum Summary) error {
	if err := slack.PostWebhookContext(ctx, s.webhookURL, Message(sum)); err != nil {
		return fmt.Errorf("failed to post run summary: %w", err)
	}
	return nil
}

// Message renders a summary as a webhook payload.
func Message(sum Summary) *slack.WebhookMessage {
	color, title := "good", "Quote run finished"
	switch {
	case sum.Err != nil:
		color, title = "danger", "Quote run failed"
	case sum.Counts.Failed > 0:
		color = "warning"
	}

	fields := []slack.AttachmentField{
		{Title: "Attempted", Value: fmt.Sprint(sum.Counts.Attempted), Short: true},
		{Title: "Succeeded", Value: fmt.Sprint(sum.Counts.Succeeded), Short: true},
		{Title: "Noise", Value: fmt.Sprint(sum.Counts.Noise), Short: true},
		{Title: "Failed", Value: fmt.Sprint(sum.Counts.Failed), Short: true},
		{Title: "Elapsed", Value: sum.Elapsed.Round(time.Second).String(), Short: true},
	}
	if sum.Artifact != "" {
		fields = append(fields, slack.AttachmentField{Title: "Artifact", Value: filepath.Base(sum.Artifact), Short: true})
	}
	if sum.Err != nil {
		fields = append(fields, slack.AttachmentField{Title: "Error", Value: sum.Err.Error()})
	}

	return &slack.WebhookMessage{
		Text: fmt.Sprintf("%s: %d/%d quotes (%s source, run %s)",
			title, sum.Counts.Succeeded, sum.Counts.Attempted, sum.Source, sum.RunID),
		Attachments: []slack.Attachment{{Color: color, Fields: fields}},
	}
}
