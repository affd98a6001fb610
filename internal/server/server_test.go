package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/toolchest/favikit/internal/cache"
	"github.com/toolchest/favikit/internal/dispatch"
	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/fixtures"
	"github.com/toolchest/favikit/internal/packager"
	"github.com/toolchest/favikit/internal/pipeline"
	"github.com/toolchest/favikit/internal/usage"
)

type upload struct {
	name string
	mime string
	data []byte
}

type testServer struct {
	*httptest.Server
	srv     *Server
	results *cache.TTL[*favicon.Result]
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	results := cache.New[*favicon.Result](time.Minute, 8)
	s := NewServer(DefaultConfig(), log, Deps{Results: results})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, srv: s, results: results}
}

func logo(t *testing.T, side int) []byte {
	t.Helper()
	data, err := fixtures.PNG(fixtures.Logo(side))
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return data
}

func multipartBody(t *testing.T, files []upload, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.mime)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(f.data)
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func (ts *testServer) post(t *testing.T, path string, files []upload, fields map[string]string, accept string) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, files, fields)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+path, body)
	req.Header.Set("Content-Type", ct)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) (APIResponse, T) {
	t.Helper()
	var env struct {
		APIResponse
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var data T
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env.APIResponse, data
}

var smallSizes = map[string]string{"sizes": "png16,png32,ico16"}

func TestGenerate_JSON(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.post(t, dispatch.GeneratePath, []upload{{"logo.png", "image/png", logo(t, 128)}}, smallSizes, "")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	env, res := decode[favicon.Result](t, resp)
	if !env.Success || !res.Success {
		t.Fatalf("expected success, got %+v", env)
	}
	if res.ProcessedBy != favicon.ProcessedByServer {
		t.Errorf("processed by: got %q", res.ProcessedBy)
	}
	if len(res.Favicons) != 3 || len(res.ICO) == 0 || res.Manifest == "" {
		t.Errorf("artifacts: favicons=%d ico=%d manifest=%d", len(res.Favicons), len(res.ICO), len(res.Manifest))
	}
	if got := resp.Header.Get(CacheHeader); got != "miss" {
		t.Errorf("cache header: got %q", got)
	}
}

func TestGenerate_Zip(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.post(t, dispatch.GeneratePath, []upload{{"logo.png", "image/png", logo(t, 64)}}, smallSizes, "application/zip")

	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type: got %q", ct)
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), favicon.ArchiveName) {
		t.Errorf("disposition: got %q", resp.Header.Get("Content-Disposition"))
	}
	body, _ := io.ReadAll(resp.Body)
	entries, err := packager.Read(body)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("entries: got %d, want 5", len(entries))
	}
}

func TestGenerate_CachesIdenticalRequests(t *testing.T) {
	ts := newTestServer(t)
	files := []upload{{"logo.png", "image/png", logo(t, 64)}}

	ts.post(t, dispatch.GeneratePath, files, smallSizes, "")
	resp := ts.post(t, dispatch.GeneratePath, files, smallSizes, "")
	if got := resp.Header.Get(CacheHeader); got != "hit" {
		t.Errorf("second request: got %q, want hit", got)
	}

	other := map[string]string{"sizes": "png16,png32,ico16", "padding": "10"}
	resp = ts.post(t, dispatch.GeneratePath, files, other, "")
	if got := resp.Header.Get(CacheHeader); got != "miss" {
		t.Errorf("different options: got %q, want miss", got)
	}
	if s := ts.results.Stats(); s.Hits != 1 || s.Size != 2 {
		t.Errorf("cache stats: got %+v", s)
	}
}

func TestGenerate_CacheHitKeepsRequestIdentity(t *testing.T) {
	ts := newTestServer(t)
	data := logo(t, 64)

	_, first := decode[favicon.Result](t, ts.post(t, dispatch.GeneratePath, []upload{{"alpha.png", "image/png", data}}, smallSizes, ""))
	resp := ts.post(t, dispatch.GeneratePath, []upload{{"beta.png", "image/png", data}}, smallSizes, "")
	if got := resp.Header.Get(CacheHeader); got != "hit" {
		t.Fatalf("second request: got %q, want hit", got)
	}
	_, second := decode[favicon.Result](t, resp)

	if second.Source != "beta.png" {
		t.Errorf("source: got %q, want beta.png", second.Source)
	}
	if second.ID == "" || second.ID == first.ID {
		t.Errorf("id: got %q, first was %q", second.ID, first.ID)
	}
	if len(second.Favicons) != len(first.Favicons) {
		t.Errorf("favicons: got %d, want %d", len(second.Favicons), len(first.Favicons))
	}

	// The cached entry itself keeps the first request's identity.
	resp = ts.post(t, dispatch.GeneratePath, []upload{{"alpha.png", "image/png", data}}, smallSizes, "")
	if _, third := decode[favicon.Result](t, resp); third.Source != "alpha.png" {
		t.Errorf("third source: got %q", third.Source)
	}
}

func TestGenerate_RejectsText(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.post(t, dispatch.GeneratePath, []upload{{"notes.txt", "text/plain", fixtures.Text}}, nil, "")

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d", resp.StatusCode)
	}
	env, res := decode[favicon.Result](t, resp)
	if env.Success || env.Error == "" {
		t.Errorf("envelope: got %+v", env)
	}
	if res.Error == nil || res.Error.Kind != "unsupported_format" {
		t.Errorf("result error: got %+v", res.Error)
	}
	if ts.results.Len() != 0 {
		t.Error("failed result was cached")
	}
}

func TestGenerate_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	png := []upload{{"logo.png", "image/png", logo(t, 32)}}
	cases := map[string]struct {
		files  []upload
		fields map[string]string
		status int
	}{
		"no file":         {nil, nil, http.StatusBadRequest},
		"two files":       {append(png, png...), nil, http.StatusBadRequest},
		"bad padding":     {png, map[string]string{"padding": "80"}, http.StatusBadRequest},
		"unparsable bool": {png, map[string]string{"generateICO": "maybe"}, http.StatusBadRequest},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			resp := ts.post(t, dispatch.GeneratePath, c.files, c.fields, "")
			if resp.StatusCode != c.status {
				t.Errorf("status: got %d, want %d", resp.StatusCode, c.status)
			}
		})
	}
}

func TestGenerate_BodyLimit(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := DefaultConfig()
	cfg.MaxUploadSize = 1 << 10
	ts := httptest.NewServer(NewServer(cfg, log, Deps{}).Handler())
	defer ts.Close()

	body, ct := multipartBody(t, []upload{{"big.png", "image/png", make([]byte, 4<<10)}}, nil)
	resp, err := http.Post(ts.URL+dispatch.GeneratePath, ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d", resp.StatusCode)
	}
}

func TestRemoteAgainstServer(t *testing.T) {
	ts := newTestServer(t)
	o := favicon.DefaultOptions()
	o.Sizes = []string{"png32", "appleTouch180"}

	res := dispatch.NewRemote(ts.URL, nil).Run(context.Background(),
		pipeline.FromBytes("logo.png", logo(t, 256), ""), o, nil)
	if !res.Success {
		t.Fatalf("remote run: %v", res.Err())
	}
	if len(res.Favicons) != 2 || res.Favicons[1].Size.Width != 180 {
		t.Errorf("favicons: got %d", len(res.Favicons))
	}
}

func TestBatch(t *testing.T) {
	ts := newTestServer(t)
	files := []upload{
		{"one.png", "image/png", logo(t, 64)},
		{"two.png", "image/png", []byte("\x89PNG\r\n\x1a\n garbage")},
		{"three.png", "image/png", logo(t, 48)},
	}
	resp := ts.post(t, "/api/favicon/batch", files, map[string]string{"sizes": "png16", "maxConcurrent": "2"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	env, out := decode[favicon.BatchResult](t, resp)
	if !env.Success || out.State != favicon.BatchPartiallyFailed {
		t.Errorf("state: got %s", out.State)
	}
	if len(out.Results) != 3 || out.Results[1].Success || out.Results[1].Error.Kind != "corrupt_image" {
		t.Errorf("per-file results: %+v", out.Results)
	}
	if len(out.Archive) == 0 {
		t.Error("combined archive missing")
	}
}

func TestBatch_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	png := []upload{{"a.png", "image/png", logo(t, 16)}}
	if resp := ts.post(t, "/api/favicon/batch", nil, nil, ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("no files: got %d", resp.StatusCode)
	}
	if resp := ts.post(t, "/api/favicon/batch", png, map[string]string{"maxConcurrent": "0"}, ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero concurrency: got %d", resp.StatusCode)
	}
}

func TestBatchOptions_ClampsConcurrency(t *testing.T) {
	o := favicon.DefaultOptions()
	if err := batchOptions(&o, 2, map[string][]string{"maxConcurrent": {"16"}, "separateArchives": {"true"}}); err != nil {
		t.Fatalf("batch options: %v", err)
	}
	if o.Batch.MaxConcurrent != 2 || !o.Batch.SeparateArchives {
		t.Errorf("got %+v", o.Batch)
	}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUsage(t *testing.T) {
	ts := newTestServer(t)
	good := `{"fileSizeBucket":"under_100kb","batchSize":1,"sizesGenerated":8,"processingTimeBucket":"under_1s","success":true}`
	if resp := postJSON(t, ts.URL+usage.Path, good); resp.StatusCode != http.StatusAccepted {
		t.Errorf("valid record: got %d", resp.StatusCode)
	}

	bad := map[string]string{
		"unknown bucket":  `{"fileSizeBucket":"huge","batchSize":1,"processingTimeBucket":"under_1s"}`,
		"identifying":     `{"fileSizeBucket":"under_100kb","batchSize":1,"processingTimeBucket":"under_1s","filename":"secret.png"}`,
		"not json":        `nope`,
		"missing batches": `{"fileSizeBucket":"under_100kb","processingTimeBucket":"under_1s"}`,
	}
	for name, body := range bad {
		if resp := postJSON(t, ts.URL+usage.Path, body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: got %d", name, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/api/favicon/usage/summary")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	defer resp.Body.Close()
	_, sum := decode[usage.Summary](t, resp)
	if sum.Total != 1 || sum.SizesGenerated != 8 || sum.BySizeBucket["under_100kb"] != 1 {
		t.Errorf("summary: got %+v", sum)
	}
}

func TestSizes(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/favicon/sizes")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	_, data := decode[SizesResponse](t, resp)
	if len(data.Sizes) != 12 {
		t.Errorf("sizes: got %d", len(data.Sizes))
	}
	if len(data.Presets["standard"]) != 8 || data.DefaultPreset != "standard" {
		t.Errorf("presets: got %v default %q", data.Presets, data.DefaultPreset)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d", resp.StatusCode)
	}
	post, err := http.Post(ts.URL+"/healthz", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /healthz: got %d", post.StatusCode)
	}
}

func TestWebSocketProgress(t *testing.T) {
	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ts.srv.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan []WSMessage, 1)
	go func() {
		var msgs []WSMessage
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		for {
			var m WSMessage
			if err := conn.ReadJSON(&m); err != nil {
				break
			}
			msgs = append(msgs, m)
			if m.Type == MsgCompleted {
				break
			}
		}
		done <- msgs
	}()

	ts.post(t, dispatch.GeneratePath, []upload{{"logo.png", "image/png", logo(t, 64)}}, smallSizes, "")

	msgs := <-done
	if len(msgs) < 2 {
		t.Fatalf("messages: got %d", len(msgs))
	}
	if msgs[0].Type != MsgProgress {
		t.Errorf("first message: got %s", msgs[0].Type)
	}
	if last := msgs[len(msgs)-1]; last.Type != MsgCompleted {
		t.Errorf("last message: got %s", last.Type)
	}
}
