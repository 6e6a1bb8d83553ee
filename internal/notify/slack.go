// Package notify posts sync summaries to Slack via incoming webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/matsen/labpubs/internal/export"
	"github.com/matsen/labpubs/internal/model"
)

// Slack posts messages to one incoming webhook URL.
type Slack struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlack creates a Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Post sends a plain text message to the webhook.
func (s *Slack) Post(message string) error {
	payload := map[string]string{"text": message}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequest("POST", s.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to Slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API error: %s", resp.Status)
	}
	return nil
}

// SyncDigest sends a summary of one sync run. Runs with nothing new and
// no errors are silent.
func (s *Slack) SyncDigest(result model.SyncResult) error {
	msg := FormatDigest(result)
	if msg == "" {
		return nil
	}
	return s.Post(msg)
}

// FormatDigest renders a sync result as a Slack message, or "" when
// there is nothing worth reporting.
func FormatDigest(result model.SyncResult) string {
	if len(result.NewWorks) == 0 && len(result.Errors) == 0 {
		return ""
	}

	var b strings.Builder
	if n := len(result.NewWorks); n > 0 {
		fmt.Fprintf(&b, ":page_facing_up: *%d new publication%s*\n", n, plural(n))
		for _, w := range result.NewWorks {
			fmt.Fprintf(&b, "• %s", w.Title)
			if len(w.Authors) > 0 {
				fmt.Fprintf(&b, " (%s)", export.CitationKey(w))
			}
			if w.DOI != "" {
				fmt.Fprintf(&b, " <https://doi.org/%s|doi>", w.DOI)
			}
			b.WriteString("\n")
		}
	}
	if n := len(result.Errors); n > 0 {
		fmt.Fprintf(&b, ":warning: %d source error%s:\n", n, plural(n))
		for _, e := range result.Errors {
			fmt.Fprintf(&b, "• %s / %s: %s\n", e.Researcher, e.Source, e.Message)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
