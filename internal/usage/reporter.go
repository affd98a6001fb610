package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Path is the usage-tracking endpoint.
const Path = "/api/favicon/usage"

// Reporter posts records to a favikit server.
type Reporter struct {
	url    string
	client *http.Client
	log    logrus.FieldLogger
}

// NewReporter creates a reporter for the server at baseURL.
func NewReporter(baseURL string, client *http.Client, log logrus.FieldLogger) *Reporter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Reporter{url: strings.TrimRight(baseURL, "/") + Path, client: client, log: log}
}

// Report sends d. Any status other than 202 is an error.
func (r *Reporter) Report(ctx context.Context, d Data) error {
	if err := d.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("usage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send usage: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("send usage: unexpected status %d", resp.StatusCode)
	}
	r.log.WithFields(logrus.Fields{
		"size_bucket": d.FileSizeBucket,
		"time_bucket": d.ProcessingTimeBucket,
		"success":     d.Success,
	}).Debug("usage reported")
	return nil
}
