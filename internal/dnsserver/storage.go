package dnsserver

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("message already exists")
)

// Message is one published file: its manifest and the TXT text of every
// chunk, indexed by sequence number.
type Message struct {
	ID        string       `json:"id"`
	Manifest  string       `json:"manifest"`
	Chunks    []string     `json:"chunks"`
	CreatedAt time.Time    `json:"created_at"`
	State     MessageState `json:"state"`
	Fetches   int          `json:"fetches"` // manifest queries answered
}

// MessageState tracks whether anyone has come for a message yet.
type MessageState int

const (
	StateNew       MessageState = iota // published, manifest never queried
	StateDelivered                     // manifest queried at least once
)

func (s MessageState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// Storage holds published messages for the server to answer from.
type Storage interface {
	StoreMessage(msg *Message) error
	GetMessage(id string) (*Message, error)
	GetManifest(id string) (string, error)
	GetChunk(id string, seq int) (string, error)
	MarkAsDelivered(id string) error
	DeleteMessage(id string) error
	ListMessages() ([]*Message, error)
	CleanExpired(ttl time.Duration) (int, error)
	GetStats() StorageStats
}

// StorageStats summarises what is being served.
type StorageStats struct {
	TotalMessages int `json:"total_messages"`
	NewMessages   int `json:"new_messages"`
	Delivered     int `json:"delivered"`
	TotalChunks   int `json:"total_chunks"`
}

// MemoryStorage keeps everything in RAM.
type MemoryStorage struct {
	mu       sync.RWMutex
	messages map[string]*Message
	now      func() time.Time
}

// NewMemoryStorage creates in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[string]*Message),
		now:      time.Now,
	}
}

// StoreMessage adds a new message. The stored copy starts out new.
func (ms *MemoryStorage) StoreMessage(msg *Message) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.messages[msg.ID]; exists {
		return errors.Wrapf(ErrExists, "message %s", msg.ID)
	}

	stored := *msg
	stored.Chunks = append([]string(nil), msg.Chunks...)
	stored.State = StateNew
	stored.Fetches = 0
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = ms.now()
	}
	ms.messages[msg.ID] = &stored
	return nil
}

// GetMessage returns a copy of the message with the given ID.
func (ms *MemoryStorage) GetMessage(id string) (*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	msg, exists := ms.messages[id]
	if !exists {
		return nil, errors.Wrapf(ErrNotFound, "message %s", id)
	}
	out := *msg
	return &out, nil
}

// GetManifest returns the manifest text of a message.
func (ms *MemoryStorage) GetManifest(id string) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	msg, exists := ms.messages[id]
	if !exists {
		return "", errors.Wrapf(ErrNotFound, "manifest %s", id)
	}
	return msg.Manifest, nil
}

// GetChunk returns the TXT text of one chunk.
func (ms *MemoryStorage) GetChunk(id string, seq int) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	msg, exists := ms.messages[id]
	if !exists || seq < 0 || seq >= len(msg.Chunks) {
		return "", errors.Wrapf(ErrNotFound, "chunk %d of %s", seq, id)
	}
	return msg.Chunks[seq], nil
}

// MarkAsDelivered records a manifest fetch.
func (ms *MemoryStorage) MarkAsDelivered(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, exists := ms.messages[id]
	if !exists {
		return errors.Wrapf(ErrNotFound, "message %s", id)
	}
	msg.State = StateDelivered
	msg.Fetches++
	return nil
}

// DeleteMessage removes a message and its chunks.
func (ms *MemoryStorage) DeleteMessage(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.messages[id]; !exists {
		return errors.Wrapf(ErrNotFound, "message %s", id)
	}
	delete(ms.messages, id)
	return nil
}

// ListMessages returns copies of all messages, oldest first.
func (ms *MemoryStorage) ListMessages() ([]*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	messages := make([]*Message, 0, len(ms.messages))
	for _, msg := range ms.messages {
		out := *msg
		messages = append(messages, &out)
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// CleanExpired removes messages published more than ttl ago.
func (ms *MemoryStorage) CleanExpired(ttl time.Duration) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cutoff := ms.now().Add(-ttl)
	removed := 0
	for id, msg := range ms.messages {
		if msg.CreatedAt.Before(cutoff) {
			delete(ms.messages, id)
			removed++
		}
	}
	return removed, nil
}

// GetStats returns storage statistics.
func (ms *MemoryStorage) GetStats() StorageStats {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var stats StorageStats
	for _, msg := range ms.messages {
		stats.TotalMessages++
		stats.TotalChunks += len(msg.Chunks)
		if msg.State == StateNew {
			stats.NewMessages++
		} else {
			stats.Delivered++
		}
	}
	return stats
}

// FileStorage is MemoryStorage persisted to a JSON file. Every change to
// the set of messages rewrites the file atomically.
type FileStorage struct {
	*MemoryStorage
	dataFile string
	saveMu   sync.Mutex
}

// NewFileStorage creates persistent storage, loading dataFile if present.
func NewFileStorage(dataFile string) (*FileStorage, error) {
	fs := &FileStorage{
		MemoryStorage: NewMemoryStorage(),
		dataFile:      dataFile,
	}
	if err := fs.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "failed to load data")
	}
	return fs, nil
}

// StoreMessage adds a message and persists it.
func (fs *FileStorage) StoreMessage(msg *Message) error {
	if err := fs.MemoryStorage.StoreMessage(msg); err != nil {
		return err
	}
	return fs.Save()
}

// MarkAsDelivered records a manifest fetch and persists it, so delivery
// state survives a restart.
func (fs *FileStorage) MarkAsDelivered(id string) error {
	if err := fs.MemoryStorage.MarkAsDelivered(id); err != nil {
		return err
	}
	return fs.Save()
}

// DeleteMessage removes a message and persists the removal.
func (fs *FileStorage) DeleteMessage(id string) error {
	if err := fs.MemoryStorage.DeleteMessage(id); err != nil {
		return err
	}
	return fs.Save()
}

// CleanExpired removes old messages and persists if anything went.
func (fs *FileStorage) CleanExpired(ttl time.Duration) (int, error) {
	removed, err := fs.MemoryStorage.CleanExpired(ttl)
	if err != nil || removed == 0 {
		return removed, err
	}
	return removed, fs.Save()
}

type snapshot struct {
	Messages map[string]*Message `json:"messages"`
}

// Save writes current state to disk.
func (fs *FileStorage) Save() error {
	fs.saveMu.Lock()
	defer fs.saveMu.Unlock()

	fs.mu.RLock()
	jsonData, err := json.MarshalIndent(snapshot{Messages: fs.messages}, "", "  ")
	fs.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "failed to marshal data")
	}

	if err := atomic.WriteFile(fs.dataFile, bytes.NewReader(jsonData)); err != nil {
		return errors.Wrapf(err, "failed to write %s", fs.dataFile)
	}
	return nil
}

// Load reads state from disk, replacing what is in memory.
func (fs *FileStorage) Load() error {
	jsonData, err := os.ReadFile(fs.dataFile)
	if err != nil {
		return errors.WithStack(err)
	}

	var data snapshot
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return errors.Wrap(err, "failed to unmarshal data")
	}
	if data.Messages == nil {
		data.Messages = make(map[string]*Message)
	}

	fs.mu.Lock()
	fs.messages = data.Messages
	fs.mu.Unlock()
	return nil
}
