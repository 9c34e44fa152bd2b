// Package store provides database access for room transcripts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rudransh-shrivastava/peer-room/internal/db"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(gdb *gorm.DB) *MessageStore {
	return &MessageStore{db: gdb}
}

func (ms *MessageStore) CreateMessage(ctx context.Context, roomID, sender, text, raw string) (db.Message, error) {
	msg := db.Message{
		RoomID:    roomID,
		Sender:    sender,
		Text:      text,
		Raw:       raw,
		CreatedAt: time.Now().Unix(),
	}
	if err := ms.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return db.Message{}, err
	}
	return msg, nil
}

// GetMessages returns the latest limit messages of a room, oldest first. A
// limit of zero or less returns all of them.
func (ms *MessageStore) GetMessages(ctx context.Context, roomID string, limit int) ([]db.Message, error) {
	q := ms.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var msgs []db.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (ms *MessageStore) DeleteRoom(ctx context.Context, roomID string) error {
	return ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&db.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("room_id = ?", roomID).Delete(&db.FileRecord{}).Error
	})
}

type FileStore struct {
	db *gorm.DB
}

func NewFileStore(gdb *gorm.DB) *FileStore {
	return &FileStore{db: gdb}
}

func (fs *FileStore) CreateFile(ctx context.Context, roomID, direction, name, mimeType string, size int64, checksum, path string) (db.FileRecord, error) {
	rec := db.FileRecord{
		RoomID:    roomID,
		Direction: direction,
		Name:      name,
		MimeType:  mimeType,
		Size:      size,
		Checksum:  checksum,
		Path:      path,
		CreatedAt: time.Now().Unix(),
	}
	if err := fs.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return db.FileRecord{}, err
	}
	return rec, nil
}

func (fs *FileStore) GetFiles(ctx context.Context, roomID string) ([]db.FileRecord, error) {
	var files []db.FileRecord
	err := fs.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id ASC").Find(&files).Error
	return files, err
}

func (fs *FileStore) GetFileByChecksum(ctx context.Context, roomID, checksum string) (db.FileRecord, error) {
	var rec db.FileRecord
	err := fs.db.WithContext(ctx).
		Where("room_id = ? AND checksum = ?", roomID, checksum).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.FileRecord{}, ErrNotFound
	}
	return rec, err
}
