package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/pipeline"
)

// GeneratePath is the fallback processing endpoint.
const GeneratePath = "/api/favicon/generate"

// FileField is the multipart field carrying the source.
const FileField = "file"

// Envelope is the JSON body every favikit API response uses.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Remote runs the pipeline on a favikit server.
type Remote struct {
	baseURL string
	client  *http.Client
}

// NewRemote creates a client for the server at baseURL. A nil client gets
// a two-minute timeout.
func NewRemote(baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Remote{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Run uploads src with opts as form fields and returns the server's result.
func (r *Remote) Run(ctx context.Context, src pipeline.Source, opts favicon.Options, progress favicon.ProgressFunc) *favicon.Result {
	start := time.Now()
	if progress != nil {
		progress(favicon.NewProgress(favicon.StepUploading, "", 0, 1))
	}
	res, err := r.generate(ctx, src, opts)
	if err != nil {
		res = &favicon.Result{
			ID:          uuid.NewString(),
			Source:      src.Name,
			Favicons:    []favicon.Generated{},
			ProcessedBy: favicon.ProcessedByServer,
		}
		res.Fail(err)
		res.ProcessingTime = time.Since(start)
	}
	if progress != nil {
		progress(favicon.NewProgress(favicon.StepDone, "", 1, 1))
	}
	return res
}

func (r *Remote) generate(ctx context.Context, src pipeline.Source, opts favicon.Options) (*favicon.Result, error) {
	data, err := src.Load()
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodeForm(src, data, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", favicon.ErrServer, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+GeneratePath, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", favicon.ErrServer, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", favicon.ErrCanceled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", favicon.ErrServer, err)
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: status %d: unreadable body: %v", favicon.ErrServer, resp.StatusCode, err)
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		var res favicon.Result
		if err := json.Unmarshal(env.Data, &res); err != nil {
			return nil, fmt.Errorf("%w: decode result: %v", favicon.ErrServer, err)
		}
		res.ProcessedBy = favicon.ProcessedByServer
		return &res, nil
	}
	msg := env.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return nil, fmt.Errorf("%w: status %d: %s", favicon.ErrServer, resp.StatusCode, msg)
}

func encodeForm(src pipeline.Source, data []byte, opts favicon.Options) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FileField, src.Name))
	ct := src.MIME
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	for field, values := range opts.FormValues() {
		for _, v := range values {
			if err := w.WriteField(field, v); err != nil {
				return nil, "", err
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
