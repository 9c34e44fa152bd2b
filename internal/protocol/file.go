package protocol

import (
	"crypto/sha256"
	"fmt"
	"io"
	"mime"
	"path/filepath"
)

func HashFile(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// ExtractFileName strips any directory part a peer may have put in a name.
func ExtractFileName(path string) string {
	name := filepath.Base(filepath.Clean("/" + filepath.ToSlash(path)))
	if name == "/" || name == "." {
		return "unnamed"
	}
	return name
}

func BuildDownloadPath(dir, roomID, fileName string) string {
	return filepath.Join(dir, ExtractFileName(roomID), ExtractFileName(fileName))
}

// MimeTypeFor guesses a mime type from the file extension.
func MimeTypeFor(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
