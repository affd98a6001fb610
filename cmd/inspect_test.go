package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/fixtures"
	"github.com/toolchest/favikit/internal/manifest"
	"github.com/toolchest/favikit/internal/packager"
	"github.com/toolchest/favikit/internal/pipeline"
)

func generated(t *testing.T, sizes ...string) *favicon.Result {
	t.Helper()
	logo, err := fixtures.PNG(fixtures.Logo(96))
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	o := favicon.DefaultOptions()
	o.Sizes = sizes
	res := pipeline.NewGenerator().Run(context.Background(), pipeline.FromBytes("logo.png", logo, ""), o, nil)
	if !res.Success {
		t.Fatalf("generate: %v", res.Err())
	}
	return res
}

func TestInspectArchive_Valid(t *testing.T) {
	res := generated(t, "png16", "png32", "ico48")
	sets, problems, err := inspectArchive(res.Archive)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("problems: %v", problems)
	}
	if len(sets) != 1 || sets[0].Dir != "" {
		t.Fatalf("sets: got %d", len(sets))
	}
	if sets[0].Manifest == nil || len(sets[0].Manifest.Icons) != 2 {
		t.Errorf("manifest not parsed")
	}
	if len(sets[0].Frames) != 3 {
		t.Errorf("ico frames: got %d, want 3", len(sets[0].Frames))
	}
}

func TestInspectArchive_Batch(t *testing.T) {
	a := generated(t, "png16")
	b := generated(t, "png32")
	b.Source = "brand/mark.svg"
	archive, err := packager.PackageBatch([]*favicon.Result{a, b})
	if err != nil {
		t.Fatalf("package: %v", err)
	}
	sets, problems, err := inspectArchive(archive)
	if err != nil || len(problems) != 0 {
		t.Fatalf("inspect: err=%v problems=%v", err, problems)
	}
	if len(sets) != 2 || sets[0].Dir != "logo" || sets[1].Dir != "mark" {
		t.Errorf("dirs: got %d sets", len(sets))
	}
}

func TestInspectArchive_Problems(t *testing.T) {
	res := generated(t, "png16", "png32")
	m, err := manifest.Parse([]byte(res.Manifest))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	m.Icons[0].Sizes = "64x64"
	m.Icons = append(m.Icons, manifest.Icon{Src: "/missing.png", Sizes: "8x8", Type: "image/png"})
	bad, _ := json.Marshal(m)

	var buf bytes.Buffer
	err = packager.Write(&buf, []packager.Entry{
		{Name: res.Favicons[0].Filename, Data: res.Favicons[0].Data},
		{Name: res.Favicons[1].Filename, Data: res.Favicons[1].Data},
		{Name: favicon.ManifestName, Data: bad},
		{Name: favicon.ICOName, Data: []byte("not an icon")},
		{Name: "broken.png", Data: []byte("nope")},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	_, problems, err := inspectArchive(buf.Bytes())
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	want := []string{"favicon.ico", "broken.png", "declares 64x64", "missing.png not in archive"}
	joined := strings.Join(problems, "\n")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Errorf("missing problem %q in:\n%s", w, joined)
		}
	}
}

func TestInspectArchive_NotZip(t *testing.T) {
	if _, _, err := inspectArchive([]byte("plain text")); err == nil {
		t.Error("expected error for non-zip input")
	}
}
