package models

import (
	"time"
)

// Message represents a single chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatSession represents one persisted conversation thread
type ChatSession struct {
	ChatID      string
	Owner       string
	DisplayName string
	Messages    []Message
	ModTime     time.Time
}

// SearchResult represents one chat matched by a history search
type SearchResult struct {
	ChatID      string  `json:"chat_id"`
	DisplayName string  `json:"display_name"`
	Snippet     string  `json:"matched_snippet"`
	Score       float64 `json:"score"`
}

// User represents a registered user
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStats represents per-user usage counters
type UserStats struct {
	Username      string `json:"username"`
	TotalMessages int    `json:"total_messages"`
	TotalUploads  int    `json:"total_uploads"`
}

// CacheEntry represents a cached AI response
type CacheEntry struct {
	Question  string
	Answer    string
	Model     string
	CreatedAt time.Time
}

// UploadRecord represents one stored file or audio upload
type UploadRecord struct {
	Owner      string    `json:"owner"`
	Filename   string    `json:"filename"`
	StoredPath string    `json:"stored_path"`
	Size       int64     `json:"size"`
	Kind       string    `json:"kind"` // "file" or "audio"
	UploadedAt time.Time `json:"uploaded_at"`
}
