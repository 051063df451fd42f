// Package hashing provides MD5 checksum helpers for desired state documents.
//
// ChecksumReaderProxy computes the checksum while a document is read from
// disk, so the document is read only once. DocumentChecksum covers documents
// that arrive in memory, such as API request bodies. Both produce the same
// hex string for the same bytes, which lets the service compare a document
// submitted over HTTP with the one on disk.
//
//	proxy := hashing.NewMD5ReaderProxy(file)
//	content, _ := io.ReadAll(proxy)
//	checksum, _ := proxy.GetChecksum()
package hashing
