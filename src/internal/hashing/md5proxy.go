package hashing

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
)

type ChecksumProvider interface {
	GetChecksum() (string, error)
}

// ChecksumReaderProxy calculates the MD5 checksum of data as it is read.
type ChecksumReaderProxy struct {
	reader      io.Reader
	checksum    hash.Hash
	bytesRead   int64
	checksumErr error
}

// NewMD5ReaderProxy wraps reader.
func NewMD5ReaderProxy(reader io.Reader) *ChecksumReaderProxy {
	return &ChecksumReaderProxy{
		reader:   reader,
		checksum: md5.New(),
	}
}

func (p *ChecksumReaderProxy) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n > 0 {
		p.bytesRead += int64(n)
		if _, checksumErr := p.checksum.Write(buf[:n]); checksumErr != nil {
			p.checksumErr = checksumErr
			return n, checksumErr
		}
	}
	return n, err
}

// BytesRead returns the number of bytes passed through the proxy.
func (p *ChecksumReaderProxy) BytesRead() int64 {
	return p.bytesRead
}

// GetChecksum returns the MD5 of everything read so far as a hex string.
func (p *ChecksumReaderProxy) GetChecksum() (string, error) {
	if p.checksumErr == nil {
		return hex.EncodeToString(p.checksum.Sum(nil)), nil
	}
	return "", p.checksumErr
}

// DocumentChecksum returns the MD5 of an in-memory document, matching what a
// ChecksumReaderProxy reports after reading the same bytes.
func DocumentChecksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
