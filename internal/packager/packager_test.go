package packager

import (
	"bytes"
	"errors"
	"testing"

	"github.com/toolchest/favikit/internal/catalog"
	"github.com/toolchest/favikit/internal/favicon"
)

func result(source string, keys ...string) *favicon.Result {
	r := &favicon.Result{Source: source, Success: true, Manifest: "{}\n", ICO: []byte("ico")}
	for _, k := range keys {
		s, _ := catalog.Lookup(k)
		r.Favicons = append(r.Favicons, favicon.Generated{
			Size:     s,
			Filename: s.Name + ".png",
			Data:     []byte("payload-" + k),
		})
	}
	return r
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPackage(t *testing.T) {
	archive, err := Package(result("logo.png", "png16", "png32"))
	if err != nil {
		t.Fatalf("package: %v", err)
	}
	entries, err := Read(archive)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []string{"favicon-16x16.png", "favicon-32x32.png", "manifest.json", "favicon.ico"}
	if got := names(entries); !equal(got, want) {
		t.Errorf("entries: got %v, want %v", got, want)
	}
	if string(entries[1].Data) != "payload-png32" {
		t.Errorf("payload: got %q", entries[1].Data)
	}
	for _, e := range entries {
		if len(e.Data) == 0 {
			t.Errorf("%s: empty entry", e.Name)
		}
	}
}

func TestPackage_Deterministic(t *testing.T) {
	a, err := Package(result("logo.png", "png16", "appleTouch180"))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := Package(result("logo.png", "png16", "appleTouch180"))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical results produced different archives")
	}
}

func TestPackage_Empty(t *testing.T) {
	if _, err := Package(&favicon.Result{}); !errors.Is(err, favicon.ErrPackaging) {
		t.Errorf("expected ErrPackaging, got %v", err)
	}
}

func TestPackageBatch(t *testing.T) {
	failed := &favicon.Result{Source: "broken.png"}
	archive, err := PackageBatch([]*favicon.Result{
		result("a/logo.png", "png16"),
		failed,
		result("b/logo.svg", "png16"),
		result("icon.jpg", "png16"),
		nil,
	})
	if err != nil {
		t.Fatalf("package batch: %v", err)
	}
	entries, err := Read(archive)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []string{
		"logo/favicon-16x16.png", "logo/manifest.json", "logo/favicon.ico",
		"logo-2/favicon-16x16.png", "logo-2/manifest.json", "logo-2/favicon.ico",
		"icon/favicon-16x16.png", "icon/manifest.json", "icon/favicon.ico",
	}
	if got := names(entries); !equal(got, want) {
		t.Errorf("entries:\n got %v\nwant %v", got, want)
	}
}

func TestPackageBatch_NoSuccess(t *testing.T) {
	_, err := PackageBatch([]*favicon.Result{{Source: "x.png"}})
	if !errors.Is(err, favicon.ErrPackaging) {
		t.Errorf("expected ErrPackaging, got %v", err)
	}
}

func TestWrite_DuplicateName(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []Entry{{Name: "a.png", Data: []byte("1")}, {Name: "a.png", Data: []byte("2")}})
	if !errors.Is(err, favicon.ErrPackaging) {
		t.Errorf("expected ErrPackaging, got %v", err)
	}
}

func TestStem(t *testing.T) {
	for in, want := range map[string]string{
		"logo.png":           "logo",
		"dir/brand.mark.svg": "brand.mark",
		`C:\img\icon.jpg`:    "icon",
		".png":               "image",
		"":                   "image",
	} {
		if got := Stem(in); got != want {
			t.Errorf("%q: got %q, want %q", in, got, want)
		}
	}
}
