package fileutil

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Hashes is the digest report for one file.
type Hashes struct {
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	MD5    string `json:"md5"`
}

// HashFile computes SHA-256 and MD5 of the file at path in a single pass.
func HashFile(path string) (Hashes, error) {
	f, err := os.Open(path)
	if err != nil {
		return Hashes{}, fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader computes SHA-256 and MD5 of everything readable from r.
func HashReader(r io.Reader) (Hashes, error) {
	s := sha256.New()
	m := md5.New()
	n, err := io.Copy(io.MultiWriter(s, m), r)
	if err != nil {
		return Hashes{}, fmt.Errorf("hash: %w", err)
	}
	return Hashes{
		Size:   n,
		SHA256: hex.EncodeToString(s.Sum(nil)),
		MD5:    hex.EncodeToString(m.Sum(nil)),
	}, nil
}
