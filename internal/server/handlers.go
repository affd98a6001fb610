package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/toolchest/favikit/internal/catalog"
	"github.com/toolchest/favikit/internal/dispatch"
	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/hasher"
	"github.com/toolchest/favikit/internal/pipeline"
	"github.com/toolchest/favikit/internal/usage"
)

const (
	multipartMemory = 32 << 20
	maxUsageBody    = 16 << 10

	// CacheHeader reports whether a generate response came from the
	// result cache.
	CacheHeader = "X-Favikit-Cache"
)

// Batch-only form fields.
const (
	fieldMaxConcurrent    = "maxConcurrent"
	fieldSeparateArchives = "separateArchives"
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	opts, ok := s.parseUpload(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[dispatch.FileField]
	if len(files) != 1 {
		s.writeError(w, fmt.Sprintf("expected exactly one %q field, got %d", dispatch.FileField, len(files)), http.StatusBadRequest)
		return
	}
	src, err := readUpload(files[0])
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	key := hasher.RequestKey(src.Data, opts)
	if cached, hit := s.results.Get(key); hit {
		res := reissue(cached, src.Name)
		s.log.WithFields(logrus.Fields{"run_id": res.ID, "source": src.Name}).Debug("generate served from cache")
		w.Header().Set(CacheHeader, "hit")
		s.respondResult(w, r, res)
		return
	}

	runID := uuid.NewString()
	res := s.runner.Run(r.Context(), src, opts, func(p favicon.Progress) {
		s.hub.Broadcast(MsgProgress, RunProgress{RunID: runID, Source: src.Name, Progress: p})
	})
	s.hub.Broadcast(MsgCompleted, map[string]interface{}{
		"runId":   runID,
		"source":  src.Name,
		"success": res.Success,
	})
	if res.Success {
		s.results.Set(key, res)
	}

	s.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"source":  src.Name,
		"success": res.Success,
		"elapsed": res.ProcessingTime.String(),
	}).Info("generate request served")

	w.Header().Set(CacheHeader, "miss")
	s.respondResult(w, r, res)
}

// reissue copies a cached result under a new run identity. Payload bytes
// are shared; releasing the copy leaves the cached entry intact.
func reissue(cached *favicon.Result, source string) *favicon.Result {
	res := *cached
	res.ID = uuid.NewString()
	res.Source = source
	res.Favicons = append([]favicon.Generated(nil), cached.Favicons...)
	res.Warnings = append([]string(nil), cached.Warnings...)
	return &res
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	opts, ok := s.parseUpload(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[dispatch.FileField]
	switch {
	case len(files) == 0:
		s.writeError(w, fmt.Sprintf("no %q fields in request", dispatch.FileField), http.StatusBadRequest)
		return
	case s.cfg.MaxBatchFiles > 0 && len(files) > s.cfg.MaxBatchFiles:
		s.writeError(w, fmt.Sprintf("batch of %d files exceeds the limit of %d", len(files), s.cfg.MaxBatchFiles), http.StatusBadRequest)
		return
	}
	if err := batchOptions(&opts, s.cfg.Defaults.Batch.MaxConcurrent, r.MultipartForm.Value); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sources := make([]pipeline.Source, 0, len(files))
	for _, fh := range files {
		src, err := readUpload(fh)
		if err != nil {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		sources = append(sources, src)
	}

	out := s.batch.Run(r.Context(), sources, opts, func(p favicon.BatchProgress) {
		s.hub.Broadcast(MsgBatchProgress, p)
	})

	if wantsZip(r) && len(out.Archive) > 0 {
		writeArchive(w, out.Archive)
		return
	}
	status := http.StatusOK
	if out.State == favicon.BatchFailed {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, APIResponse{
		Success: out.State != favicon.BatchFailed,
		Message: fmt.Sprintf("%d of %d files succeeded", out.Succeeded, len(out.Results)),
		Data:    out,
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUsageBody))
	dec.DisallowUnknownFields()

	var d usage.Data
	if err := dec.Decode(&d); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.usage.Record(d); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusAccepted, APIResponse{Success: true, Message: "recorded"})
}

func (s *Server) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.usage.Summary()})
}

// SizesResponse lists the catalog.
type SizesResponse struct {
	Sizes         []catalog.Size      `json:"sizes"`
	Presets       map[string][]string `json:"presets"`
	DefaultPreset string              `json:"defaultPreset"`
}

func (s *Server) handleSizes(w http.ResponseWriter, r *http.Request) {
	presets := make(map[string][]string)
	for _, name := range catalog.PresetNames() {
		presets[name], _ = catalog.Preset(name)
	}
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: SizesResponse{
			Sizes:         catalog.All(),
			Presets:       presets,
			DefaultPreset: catalog.DefaultPreset,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":  "ok",
			"clients": s.hub.Clients(),
			"cache":   s.results.Stats(),
		},
	})
}

// parseUpload reads the multipart body and overlays its option fields on
// the server defaults. It writes the error response itself.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (favicon.Options, bool) {
	if s.cfg.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, fmt.Sprintf("%v: request body over %d bytes", favicon.ErrFileTooLarge, tooBig.Limit), http.StatusRequestEntityTooLarge)
			return favicon.Options{}, false
		}
		s.writeError(w, fmt.Sprintf("invalid multipart body: %v", err), http.StatusBadRequest)
		return favicon.Options{}, false
	}
	opts, err := favicon.OptionsFromForm(s.cfg.Defaults, r.MultipartForm.Value)
	if err != nil {
		r.MultipartForm.RemoveAll()
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return favicon.Options{}, false
	}
	return opts, true
}

func batchOptions(o *favicon.Options, ceiling int, v map[string][]string) error {
	if vals := v[fieldMaxConcurrent]; len(vals) > 0 && vals[0] != "" {
		n, err := strconv.Atoi(vals[0])
		if err != nil || n < 1 {
			return fmt.Errorf("%w: %s=%q", favicon.ErrInvalidOptions, fieldMaxConcurrent, vals[0])
		}
		o.Batch.MaxConcurrent = n
	}
	if ceiling > 0 {
		o.Batch.MaxConcurrent = min(o.Batch.MaxConcurrent, ceiling)
	}
	if vals := v[fieldSeparateArchives]; len(vals) > 0 && vals[0] != "" {
		b, err := strconv.ParseBool(vals[0])
		if err != nil {
			return fmt.Errorf("%w: %s=%q", favicon.ErrInvalidOptions, fieldSeparateArchives, vals[0])
		}
		o.Batch.SeparateArchives = b
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) (pipeline.Source, error) {
	f, err := fh.Open()
	if err != nil {
		return pipeline.Source{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return pipeline.Source{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return pipeline.FromBytes(fh.Filename, data, fh.Header.Get("Content-Type")), nil
}

func (s *Server) respondResult(w http.ResponseWriter, r *http.Request, res *favicon.Result) {
	if !res.Success {
		status := http.StatusInternalServerError
		if favicon.IsInputError(res.Err()) {
			status = http.StatusUnprocessableEntity
		}
		s.writeJSON(w, status, APIResponse{Success: false, Data: res, Error: res.Err().Error()})
		return
	}
	if wantsZip(r) && len(res.Archive) > 0 {
		writeArchive(w, res.Archive)
		return
	}
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: res})
}

func wantsZip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/zip")
}

func writeArchive(w http.ResponseWriter, archive []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", favicon.ArchiveName))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	w.Write(archive)
}
