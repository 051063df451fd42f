package config

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeDocument(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}
	return path
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestStateHasher_CurrentHash(t *testing.T) {
	content := "interfaces:\n- name: eth0\n  type: ethernet\n"
	path := writeDocument(t, content)

	hasher := NewStateHasher(path)
	hash, err := hasher.GetCurrentHash()
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	if hash != md5Hex(content) {
		t.Errorf("Expected %s, got %s", md5Hex(content), hash)
	}
}

func TestStateHasher_CacheAndInvalidate(t *testing.T) {
	path := writeDocument(t, "a")
	hasher := NewStateHasher(path)

	first, err := hasher.GetCurrentHash()
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}

	if err := os.WriteFile(path, []byte("b"), 0644); err != nil {
		t.Fatalf("Failed to rewrite document: %v", err)
	}

	cached, _ := hasher.GetCurrentHash()
	if cached != first {
		t.Error("Expected cached hash before invalidation")
	}

	hasher.Invalidate()
	fresh, err := hasher.GetCurrentHash()
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	if fresh != md5Hex("b") {
		t.Errorf("Expected hash of new content, got %s", fresh)
	}
}

func TestStateHasher_IsApplied(t *testing.T) {
	path := writeDocument(t, "routes: {}\n")
	hasher := NewStateHasher(path)

	applied, err := hasher.IsApplied()
	if err != nil {
		t.Fatalf("IsApplied failed: %v", err)
	}
	if applied {
		t.Error("Expected document to be unapplied initially")
	}

	hash, _ := hasher.GetCurrentHash()
	hasher.SetActiveHash(hash)
	if applied, _ := hasher.IsApplied(); !applied {
		t.Error("Expected document to be applied after SetActiveHash")
	}
}

func TestStateHasher_MissingFile(t *testing.T) {
	hasher := NewStateHasher(filepath.Join(t.TempDir(), "missing.yml"))
	if _, err := hasher.GetCurrentHash(); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestStateHasher_Concurrent(t *testing.T) {
	path := writeDocument(t, "interfaces: []\n")
	hasher := NewStateHasher(path)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := hasher.GetCurrentHash(); err != nil {
				t.Errorf("GetCurrentHash failed: %v", err)
			}
			hasher.SetActiveHash("x")
			_ = hasher.GetActiveHash()
		}()
	}
	wg.Wait()
}

func TestReadDocument(t *testing.T) {
	content := "interfaces: []\n"
	path := writeDocument(t, content)

	data, hash, err := ReadDocument(path)
	if err != nil {
		t.Fatalf("ReadDocument failed: %v", err)
	}
	if string(data) != content {
		t.Errorf("Unexpected content %q", data)
	}
	if hash != md5Hex(content) {
		t.Errorf("Unexpected hash %s", hash)
	}
}
