package config

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/maksimkurb/keen-netstate/src/internal/hashing"
	"github.com/maksimkurb/keen-netstate/src/internal/utils"
)

const hashCacheTTL = 5 * time.Minute

// StateHasher calculates the MD5 hash of the desired state document.
// It keeps a cached hash of the file on disk and the hash of the document
// that was last applied by the running service.
type StateHasher struct {
	path string

	// Current hash (from the file) with caching
	currentHash     string
	currentHashTime time.Time

	// Active hash (last applied document)
	activeHash string

	mu sync.RWMutex
}

// NewStateHasher creates a hasher for the document at path.
func NewStateHasher(path string) *StateHasher {
	return &StateHasher{
		path: path,
	}
}

// GetCurrentHash returns the cached hash of the document on disk.
// It calls UpdateCurrentHash on cache miss.
func (h *StateHasher) GetCurrentHash() (string, error) {
	h.mu.RLock()
	if time.Since(h.currentHashTime) < hashCacheTTL && h.currentHash != "" {
		hash := h.currentHash
		h.mu.RUnlock()
		return hash, nil
	}
	h.mu.RUnlock()

	return h.UpdateCurrentHash()
}

// UpdateCurrentHash recalculates the hash and resets the cache.
func (h *StateHasher) UpdateCurrentHash() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hash, err := hashFile(h.path)
	if err != nil {
		return "", err
	}

	h.currentHash = hash
	h.currentHashTime = time.Now()
	return hash, nil
}

// Invalidate drops the cached hash so the next GetCurrentHash reads the file.
func (h *StateHasher) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentHash = ""
	h.currentHashTime = time.Time{}
}

// GetActiveHash returns the hash of the document that was last applied.
func (h *StateHasher) GetActiveHash() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.activeHash
}

// SetActiveHash records the hash of an applied document.
func (h *StateHasher) SetActiveHash(hash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activeHash = hash
}

// IsApplied reports whether the document on disk is the one last applied.
func (h *StateHasher) IsApplied() (bool, error) {
	current, err := h.GetCurrentHash()
	if err != nil {
		return false, err
	}
	return current == h.GetActiveHash(), nil
}

// ReadDocument reads the document at path and returns it with its MD5 hash.
func ReadDocument(path string) ([]byte, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open desired state file: %w", err)
	}
	defer utils.CloseOrWarn(file)

	proxy := hashing.NewMD5ReaderProxy(file)
	content, err := io.ReadAll(proxy)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read desired state file: %w", err)
	}
	hash, err := proxy.GetChecksum()
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash desired state file: %w", err)
	}
	return content, hash, nil
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open desired state file: %w", err)
	}
	defer utils.CloseOrWarn(file)

	proxy := hashing.NewMD5ReaderProxy(file)
	if _, err := io.Copy(io.Discard, proxy); err != nil {
		return "", fmt.Errorf("failed to hash desired state file: %w", err)
	}
	return proxy.GetChecksum()
}
