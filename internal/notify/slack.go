package notify

import (
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
)

// SlackNotifier is a second notification channel alongside web push,
// matching the teacher's single-responsibility Manager shape in
// webpush.go but backed by a Slack bot token instead of VAPID keys.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	logger  *slog.Logger
}

func NewSlackNotifier(token, channel string, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token), channel: channel, logger: logger}
}

func (s *SlackNotifier) NotifyPermissionPrompt(ptyID, name string) {
	s.post(fmt.Sprintf(":warning: *%s* (`%s`) is waiting on a permission prompt", name, ptyID))
}

func (s *SlackNotifier) NotifyExit(ptyID, name string, code int) {
	s.post(fmt.Sprintf(":checkered_flag: *%s* (`%s`) exited (code %d)", name, ptyID, code))
}

func (s *SlackNotifier) post(text string) {
	if _, _, err := s.client.PostMessage(s.channel, slack.MsgOptionText(text, false)); err != nil {
		s.logger.Debug("slack notify failed", "err", err)
	}
}
