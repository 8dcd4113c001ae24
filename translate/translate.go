// Package translate is a thin client for the remote translation service.
//
// The service is advisory: if it is unreachable, slow, or returns garbage,
// publication must proceed with the original content. Translate therefore
// never returns an error; any failure degrades to (true, original).
package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/cfg"
	"github.com/burrowbb/burrow/telemetry"
)

// Client calls the translation service configured in cfg.Config.Translator.
type Client struct {
	baseURL string
	http    *http.Client
}

type translateResponse struct {
	IsEnglish         *bool   `json:"is_english"`
	TranslatedContent *string `json:"translated_content"`
}

// NewClient creates a translation client. An empty base URL disables the
// service; Translate then always passes content through.
func NewClient(config cfg.TranslatorConfiguration) *Client {
	return &Client{
		baseURL: config.URL,
		http: &http.Client{
			Timeout: time.Duration(config.TimeoutMS) * time.Millisecond,
		},
	}
}

// Translate reports whether content is English and returns the translated
// text. Fails open: on any transport or parse failure the original content
// comes back marked as English.
func (c *Client) Translate(ctx context.Context, content string) (bool, string) {
	if c.baseURL == "" {
		return true, content
	}

	start := time.Now()
	isEnglish, translated, ok := c.call(ctx, content)
	telemetry.TranslateDurationSeconds.Observe(time.Since(start).Seconds())

	if !ok {
		telemetry.TranslateRequestsTotal.With("fail_open").Inc()
		return true, content
	}
	telemetry.TranslateRequestsTotal.With("ok").Inc()
	return isEnglish, translated
}

func (c *Client) call(ctx context.Context, content string) (bool, string, bool) {
	endpoint := c.baseURL + "/?content=" + url.QueryEscape(content)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Translation request build failed")
		return false, "", false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Translation service unreachable")
		return false, "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Msg("Translation service returned non-200")
		return false, "", false
	}

	var data translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Debug().Err(err).Msg("Translation response parse failed")
		return false, "", false
	}
	if data.IsEnglish == nil || data.TranslatedContent == nil {
		return false, "", false
	}
	return *data.IsEnglish, *data.TranslatedContent, true
}
