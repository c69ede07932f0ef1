package notify

// Notifier is the common shape both notification channels satisfy.
type Notifier interface {
	NotifyPermissionPrompt(ptyID, name string)
	NotifyExit(ptyID, name string, code int)
}

// Broadcaster fans a readiness transition out to every configured
// channel, so the hub has one thing to call regardless of how many
// channels (push, Slack, …) are actually enabled.
type Broadcaster struct {
	channels []Notifier
}

func NewBroadcaster(channels ...Notifier) *Broadcaster {
	return &Broadcaster{channels: channels}
}

func (b *Broadcaster) NotifyPermissionPrompt(ptyID, name string) {
	for _, c := range b.channels {
		c.NotifyPermissionPrompt(ptyID, name)
	}
}

func (b *Broadcaster) NotifyExit(ptyID, name string, code int) {
	for _, c := range b.channels {
		c.NotifyExit(ptyID, name, code)
	}
}
