package notify

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	sent []string
	err  error
}

func (c *countingNotifier) Send(subject, body string) error {
	c.sent = append(c.sent, subject)
	return c.err
}

func TestRouterFansOut(t *testing.T) {
	a := &countingNotifier{}
	b := &countingNotifier{}
	r := NewRouter(0, a, b)

	r.Alert("subject", "body")

	assert.Equal(t, []string{"subject"}, a.sent)
	assert.Equal(t, []string{"subject"}, b.sent)
}

func TestRouterThrottles(t *testing.T) {
	n := &countingNotifier{}
	r := NewRouter(time.Hour, n)

	r.Alert("first", "body")
	r.Alert("second", "body")
	r.Alert("third", "body")

	assert.Equal(t, []string{"first"}, n.sent, "only the first alert inside the window is delivered")
}

func TestRouterZeroIntervalDisablesThrottle(t *testing.T) {
	n := &countingNotifier{}
	r := NewRouter(0, n)

	for i := 0; i < 5; i++ {
		r.Alert("s", "b")
	}
	assert.Len(t, n.sent, 5)
}

func TestRouterSwallowsDeliveryErrors(t *testing.T) {
	n := &countingNotifier{err: errors.New("smtp down")}
	r := NewRouter(0, n)

	assert.NotPanics(t, func() { r.Alert("s", "b") })
	assert.Len(t, n.sent, 1)
}

func TestRouterWithNoChannels(t *testing.T) {
	r := NewRouter(time.Minute)
	assert.NotPanics(t, func() { r.Alert("s", "b") })
}

func TestEmailMessageFormat(t *testing.T) {
	e := NewEmail("localhost", 25, "sysward@example.com", "ops@example.com")

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	e.send = func(addr, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	require.NoError(t, e.Send("System status CRITICAL", "disk almost full"))

	assert.Equal(t, "localhost:25", gotAddr)
	assert.Equal(t, "sysward@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [sysward] System status CRITICAL")
	assert.Contains(t, gotMsg, "disk almost full")
}

// A relay that accepts the TCP connection and never sends the SMTP greeting
// must not block Send past the session timeout; the supervisor loop alerts
// synchronously and cannot afford a hung delivery.
func TestEmailStalledRelayTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			// Hold the connection open without ever speaking SMTP.
			go func(c net.Conn) {
				<-done
				c.Close()
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	e := NewEmail(addr.IP.String(), addr.Port, "sysward@example.com", "ops@example.com")
	e.timeout = 500 * time.Millisecond

	start := time.Now()
	err = e.Send("subject", "body")
	elapsed := time.Since(start)

	require.Error(t, err, "silent relay must fail, not hang")
	assert.Less(t, elapsed, 5*time.Second, "session deadline not enforced, took %s", elapsed)
}

func TestEmailSubmitFailure(t *testing.T) {
	e := NewEmail("localhost", 25, "a@b", "c@d")
	e.send = func(addr, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}

	err := e.Send("s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c@d")
}

func TestDiscordPostsEmbed(t *testing.T) {
	var payload webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL)
	require.NoError(t, d.Send("System status CRITICAL", "details here"))

	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "System status CRITICAL", payload.Embeds[0].Title)
	assert.Equal(t, "details here", payload.Embeds[0].Description)
	assert.Equal(t, colorOrange, payload.Embeds[0].Color)
	require.NotNil(t, payload.Embeds[0].Footer)
	assert.Contains(t, payload.Embeds[0].Footer.Text, "sysward")
}

func TestDiscordTruncatesLongBody(t *testing.T) {
	var payload webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL)
	require.NoError(t, d.Send("s", strings.Repeat("x", 10000)))
	assert.Len(t, payload.Embeds[0].Description, embedDescriptionLimit)
	assert.True(t, strings.HasSuffix(payload.Embeds[0].Description, "..."))
}

func TestDiscordErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL).Send("s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestDiscordEmptyURLIsNoop(t *testing.T) {
	assert.NoError(t, NewDiscord("").Send("s", "b"))
}

func TestSeverityColor(t *testing.T) {
	assert.Equal(t, colorRed, severityColor("System status ERROR"))
	assert.Equal(t, colorOrange, severityColor("System status CRITICAL"))
	assert.Equal(t, colorYellow, severityColor("System status WARNING"))
	assert.Equal(t, colorGrey, severityColor("something else"))
}
