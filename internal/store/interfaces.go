package store

import (
	"context"

	"github.com/rudransh-shrivastava/peer-room/internal/db"
)

// MessageRepository defines chat transcript operations.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID, sender, text, raw string) (db.Message, error)
	GetMessages(ctx context.Context, roomID string, limit int) ([]db.Message, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// FileRepository defines file history operations.
type FileRepository interface {
	CreateFile(ctx context.Context, roomID, direction, name, mimeType string, size int64, checksum, path string) (db.FileRecord, error)
	GetFiles(ctx context.Context, roomID string) ([]db.FileRecord, error)
	GetFileByChecksum(ctx context.Context, roomID, checksum string) (db.FileRecord, error)
}

var (
	_ MessageRepository = (*MessageStore)(nil)
	_ FileRepository    = (*FileStore)(nil)
)
