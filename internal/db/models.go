package db

// Message is one chat line of a room transcript.
type Message struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    string `gorm:"index;not null"`
	Sender    string `gorm:"not null"`
	Text      string
	Raw       string
	CreatedAt int64
}

// FileRecord is a file sent or received in a room. The bytes themselves
// live on disk at Path, if they were saved.
type FileRecord struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    string `gorm:"index;not null"`
	Direction string `gorm:"not null"`
	Name      string
	MimeType  string
	Size      int64
	Checksum  string
	Path      string
	CreatedAt int64
}
