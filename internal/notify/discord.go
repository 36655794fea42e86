package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"sysward/internal/version"
)

// Discord embed colors per alert severity.
const (
	colorRed    = 0xE74C3C
	colorOrange = 0xE67E22
	colorYellow = 0xF1C40F
	colorGrey   = 0x95A5A6
)

// embedDescriptionLimit is Discord's hard cap on embed descriptions.
const embedDescriptionLimit = 4096

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedFooter struct {
	Text string `json:"text,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

// Discord posts alerts to a Discord webhook as a single embed.
type Discord struct {
	URL    string
	client *http.Client
}

// NewDiscord builds a webhook notifier with a bounded request timeout.
func NewDiscord(url string) *Discord {
	return &Discord{
		URL:    url,
		client: &http.Client{Timeout: 8 * time.Second},
	}
}

// Send posts one embed. The embed color is derived from the severity word
// in the subject line.
func (d *Discord) Send(subject, body string) error {
	if d.URL == "" {
		return nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	if len(body) > embedDescriptionLimit {
		body = body[:embedDescriptionLimit-3] + "..."
	}
	payload := webhookPayload{Embeds: []embed{{
		Title:       subject,
		Description: body,
		Color:       severityColor(subject),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Footer:      &embedFooter{Text: fmt.Sprintf("sysward %s on %s", version.Version, hostname)},
	}}}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, d.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned %d", resp.StatusCode)
	}
	return nil
}

func severityColor(subject string) int {
	switch {
	case strings.Contains(subject, "ERROR"):
		return colorRed
	case strings.Contains(subject, "CRITICAL"):
		return colorOrange
	case strings.Contains(subject, "WARNING"):
		return colorYellow
	default:
		return colorGrey
	}
}
