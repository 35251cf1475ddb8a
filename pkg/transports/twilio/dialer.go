package twilio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Mercy2112/ai-voice-assistant/pkg/transports"
)

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Dialer provides outbound call creation via Twilio REST API.
type Dialer struct {
	cfg    Config
	client callCreator
}

// NewDialer creates a new Twilio dialer.
func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg.withDefaults()}
}

// Dial places an outbound call using Twilio.
func (d *Dialer) Dial(ctx context.Context, to, from, url string) (string, error) {
	return d.DialWithOptions(ctx, to, from, url, transports.DialOptions{})
}

// DialWithOptions places an outbound call. An empty url points the call at
// this deployment's voice webhook; the status callback is filled in the
// same way so hangups reach the engine.
func (d *Dialer) DialWithOptions(ctx context.Context, to, from, url string, opts transports.DialOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if from == "" {
		from = d.cfg.FromNumber
	}
	if to == "" || from == "" {
		return "", errors.New("to/from required")
	}
	if d.cfg.AccountSID == "" || d.cfg.AuthToken == "" {
		return "", errors.New("missing twilio credentials")
	}
	if url == "" {
		url = d.VoiceURL("")
	}
	client := d.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: d.cfg.AccountSID,
			Password: d.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(url)
	if strings.TrimSpace(opts.SendDigits) != "" {
		params.SetSendDigits(opts.SendDigits)
	}
	callback := opts.StatusCallback
	if callback == "" && d.cfg.PublicURL != "" {
		callback = "https://" + normalizePublicURL(d.cfg.PublicURL) + d.cfg.StatusCallbackPath
	}
	if callback != "" {
		params.SetStatusCallback(callback)
		params.SetStatusCallbackEvent([]string{"completed"})
	}
	if opts.Timeout > 0 {
		params.SetTimeout(opts.Timeout)
	}
	resp, err := client.CreateCall(params)
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Sid == nil {
		return "", fmt.Errorf("missing call sid")
	}
	return *resp.Sid, nil
}

// VoiceURL is the voice webhook URL, optionally carrying a per-call
// objective that the webhook forwards into the media stream.
func (d *Dialer) VoiceURL(objective string) string {
	var base string
	if d.cfg.PublicURL != "" {
		base = "https://" + normalizePublicURL(d.cfg.PublicURL) + d.cfg.VoicePath
	} else {
		addr := d.cfg.ServerAddr
		if addr[0] == ':' {
			addr = "localhost" + addr
		}
		base = "http://" + addr + d.cfg.VoicePath
	}
	if objective == "" {
		return base
	}
	return base + "?" + url.Values{"objective": []string{objective}}.Encode()
}
