package hashing

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
)

type errorReader struct {
	err error
}

func (e *errorReader) Read(p []byte) (n int, err error) {
	return 0, e.err
}

func expectedMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestChecksumReaderProxy_ReadAll(t *testing.T) {
	doc := "interfaces:\n- name: eth0\n  state: up\n"
	proxy := NewMD5ReaderProxy(strings.NewReader(doc))

	data, err := io.ReadAll(proxy)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != doc {
		t.Errorf("Expected proxy to pass data through, got %q", data)
	}
	if proxy.BytesRead() != int64(len(doc)) {
		t.Errorf("Expected %d bytes read, got %d", len(doc), proxy.BytesRead())
	}

	checksum, err := proxy.GetChecksum()
	if err != nil {
		t.Fatalf("GetChecksum failed: %v", err)
	}
	if checksum != expectedMD5(doc) {
		t.Errorf("Expected %s, got %s", expectedMD5(doc), checksum)
	}
}

func TestChecksumReaderProxy_SmallBuffer(t *testing.T) {
	doc := "routes:\n  config: []\n"
	proxy := NewMD5ReaderProxy(strings.NewReader(doc))

	buf := make([]byte, 3)
	for {
		_, err := proxy.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	}

	checksum, _ := proxy.GetChecksum()
	if checksum != expectedMD5(doc) {
		t.Errorf("Expected checksum independent of buffer size, got %s", checksum)
	}
}

func TestChecksumReaderProxy_ReadError(t *testing.T) {
	readErr := errors.New("device gone")
	proxy := NewMD5ReaderProxy(&errorReader{err: readErr})

	if _, err := proxy.Read(make([]byte, 8)); !errors.Is(err, readErr) {
		t.Errorf("Expected read error to propagate, got %v", err)
	}
	checksum, err := proxy.GetChecksum()
	if err != nil {
		t.Fatalf("GetChecksum failed: %v", err)
	}
	if checksum != expectedMD5("") {
		t.Errorf("Expected checksum of empty input, got %s", checksum)
	}
}

func TestDocumentChecksum_MatchesProxy(t *testing.T) {
	doc := "route-rules:\n  config:\n  - priority: 3200\n"
	proxy := NewMD5ReaderProxy(strings.NewReader(doc))
	if _, err := io.Copy(io.Discard, proxy); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	fromProxy, _ := proxy.GetChecksum()

	if got := DocumentChecksum([]byte(doc)); got != fromProxy {
		t.Errorf("DocumentChecksum = %s, proxy = %s", got, fromProxy)
	}
}
