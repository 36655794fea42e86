// Package notify delivers operator alerts over email and Discord.
package notify

// Notifier delivers one alert to a single channel.
type Notifier interface {
	Send(subject, body string) error
}

// Nop is a Notifier that discards everything.
type Nop struct{}

func (Nop) Send(string, string) error { return nil }
