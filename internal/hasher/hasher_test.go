package hasher

import (
	"testing"

	"github.com/toolchest/favikit/internal/favicon"
)

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("favicon"))
	if len(a) != HexLen {
		t.Fatalf("length: got %d, want %d", len(a), HexLen)
	}
	if a != ContentHash([]byte("favicon")) {
		t.Error("hash not stable")
	}
	if a == ContentHash([]byte("favicon!")) {
		t.Error("different inputs hashed equal")
	}
}

func TestRequestKey(t *testing.T) {
	data := []byte("source bytes")
	base := favicon.DefaultOptions()

	if RequestKey(data, base) != RequestKey(data, favicon.DefaultOptions()) {
		t.Error("equal options gave different keys")
	}

	changed := favicon.DefaultOptions()
	changed.Padding = 10
	if RequestKey(data, base) == RequestKey(data, changed) {
		t.Error("padding change did not change the key")
	}

	batchOnly := favicon.DefaultOptions()
	batchOnly.Batch.MaxConcurrent = 8
	batchOnly.LargeFile.FallbackToServer = true
	if RequestKey(data, base) != RequestKey(data, batchOnly) {
		t.Error("batch and large-file policy should not affect the key")
	}

	if RequestKey(data, base) == RequestKey([]byte("other bytes"), base) {
		t.Error("different data gave the same key")
	}
}
