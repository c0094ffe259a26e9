package session

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// illegalChars matches characters that cannot appear in a session filename.
var illegalChars = regexp.MustCompile(`[/\\:*?"<>|[:cntrl:]]+`)

// ownerState holds one user's cached chats. Reads share the lock, any
// mutation excludes both readers and other writers for that owner.
type ownerState struct {
	mu     sync.RWMutex
	loaded bool
	chats  map[string]*models.ChatSession
}

// Service is a read-through cache over the on-disk session files. The cache
// never reports a chat that does not exist on disk; writes go disk-first so
// a failed write leaves the cached entry at its pre-write value.
type Service struct {
	store  *FileStore
	logger *logrus.Logger

	mu     sync.Mutex
	owners map[string]*ownerState
}

// NewService creates the session cache over the given store
func NewService(store *FileStore, logger *logrus.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		owners: make(map[string]*ownerState),
	}
}

func (s *Service) ownerState(owner string) *ownerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.owners[owner]
	if !ok {
		st = &ownerState{}
		s.owners[owner] = st
	}
	return st
}

// ensureLoaded populates an owner's cache from disk on first access.
// A failed scan leaves the cache unpopulated so the next call retries.
func (s *Service) ensureLoaded(owner string, st *ownerState) error {
	st.mu.RLock()
	loaded := st.loaded
	st.mu.RUnlock()
	if loaded {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.loaded {
		return nil
	}

	chats, err := s.store.LoadAll(owner)
	if err != nil {
		return err
	}
	st.chats = chats
	st.loaded = true

	s.logger.WithFields(logrus.Fields{
		"owner": owner,
		"chats": len(chats),
	}).Debug("Loaded session metadata")
	return nil
}

// ListChats returns the owner's chat ids, most recently modified first.
// Ties are broken by id so the order is stable within a session.
func (s *Service) ListChats(owner string) ([]string, error) {
	st := s.ownerState(owner)
	if err := s.ensureLoaded(owner, st); err != nil {
		return nil, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	sessions := make([]*models.ChatSession, 0, len(st.chats))
	for _, sess := range st.chats {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].ModTime.Equal(sessions[j].ModTime) {
			return sessions[i].ModTime.After(sessions[j].ModTime)
		}
		return sessions[i].ChatID < sessions[j].ChatID
	})

	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ChatID
	}
	return ids, nil
}

// GetHistory returns a copy of the chat's messages in chronological order
func (s *Service) GetHistory(owner, chatID string) ([]models.Message, error) {
	st := s.ownerState(owner)
	if err := s.ensureLoaded(owner, st); err != nil {
		return nil, err
	}

	st.mu.RLock()
	sess, ok := st.chats[chatID]
	if ok {
		messages := copyMessages(sess.Messages)
		st.mu.RUnlock()
		return messages, nil
	}
	st.mu.RUnlock()

	// Cache miss: the file may have been created outside this process
	return s.adoptFromDisk(owner, chatID, st)
}

// adoptFromDisk pulls a foreign session file into the cache
func (s *Service) adoptFromDisk(owner, chatID string, st *ownerState) ([]models.Message, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if sess, ok := st.chats[chatID]; ok {
		return copyMessages(sess.Messages), nil
	}

	sess, err := s.store.Load(owner, chatID)
	if err != nil {
		return nil, err
	}
	st.chats[chatID] = sess
	return copyMessages(sess.Messages), nil
}

// CreateChat creates an empty session in cache and on disk. An empty chatID
// gets a fresh UUID; a caller-chosen id is sanitized first.
func (s *Service) CreateChat(owner, chatID string) (string, error) {
	if chatID == "" {
		chatID = uuid.NewString()
	} else {
		var err error
		chatID, err = sanitizeChatID(chatID)
		if err != nil {
			return "", err
		}
	}

	st := s.ownerState(owner)
	if err := s.ensureLoaded(owner, st); err != nil {
		return "", err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.chats[chatID]; ok {
		return "", apperrors.ErrConflict
	}
	if s.store.Exists(owner, chatID) {
		return "", apperrors.ErrConflict
	}

	sess := &models.ChatSession{
		ChatID:      chatID,
		Owner:       owner,
		DisplayName: chatID,
		Messages:    []models.Message{},
		ModTime:     time.Now(),
	}
	if err := s.store.Save(sess); err != nil {
		return "", err
	}
	st.chats[chatID] = sess

	s.logger.WithFields(logrus.Fields{
		"owner":   owner,
		"chat_id": chatID,
	}).Info("Chat created")
	return chatID, nil
}

// AppendMessage appends one message and persists the full session.
// Disk is written first; the cache keeps its pre-write value on failure.
func (s *Service) AppendMessage(owner, chatID, role, content string) error {
	st := s.ownerState(owner)
	if err := s.ensureLoaded(owner, st); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := s.lookupLocked(owner, chatID, st)
	if err != nil {
		return err
	}

	updated := *sess
	updated.Messages = append(copyMessages(sess.Messages), models.Message{Role: role, Content: content})
	updated.ModTime = time.Now()

	if err := s.store.Save(&updated); err != nil {
		return err
	}
	st.chats[chatID] = &updated
	return nil
}

// RenameChat renames the backing file and the cache key. The history bytes
// on disk are untouched; only the identifier changes.
func (s *Service) RenameChat(owner, oldID, newName string) (string, error) {
	newID, err := sanitizeChatID(newName)
	if err != nil {
		return "", err
	}

	st := s.ownerState(owner)
	if err := s.ensureLoaded(owner, st); err != nil {
		return "", err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := s.lookupLocked(owner, oldID, st)
	if err != nil {
		return "", err
	}
	if newID == oldID {
		return newID, nil
	}
	if _, ok := st.chats[newID]; ok {
		return "", apperrors.ErrConflict
	}
	if s.store.Exists(owner, newID) {
		return "", apperrors.ErrConflict
	}

	if err := s.store.Rename(owner, oldID, newID); err != nil {
		return "", err
	}

	renamed := *sess
	renamed.ChatID = newID
	renamed.DisplayName = newID
	renamed.ModTime = time.Now()
	delete(st.chats, oldID)
	st.chats[newID] = &renamed

	s.logger.WithFields(logrus.Fields{
		"owner":  owner,
		"old_id": oldID,
		"new_id": newID,
	}).Info("Chat renamed")
	return newID, nil
}

// ClearChat truncates the history to empty in cache and on disk. Returns
// false when there was nothing to clear, and skips the disk write in that
// case so repeated calls stay idempotent.
func (s *Service) ClearChat(owner, chatID string) (bool, error) {
	st := s.ownerState(owner)
	if err := s.ensureLoaded(owner, st); err != nil {
		return false, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := s.lookupLocked(owner, chatID, st)
	if err != nil {
		return false, err
	}
	if len(sess.Messages) == 0 {
		return false, nil
	}

	cleared := *sess
	cleared.Messages = []models.Message{}
	cleared.ModTime = time.Now()
	if err := s.store.Save(&cleared); err != nil {
		return false, err
	}
	st.chats[chatID] = &cleared
	return true, nil
}

// DeleteChat removes the session from cache and disk
func (s *Service) DeleteChat(owner, chatID string) error {
	st := s.ownerState(owner)
	if err := s.ensureLoaded(owner, st); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, err := s.lookupLocked(owner, chatID, st); err != nil {
		return err
	}
	if err := s.store.Delete(owner, chatID); err != nil {
		return err
	}
	delete(st.chats, chatID)

	s.logger.WithFields(logrus.Fields{
		"owner":   owner,
		"chat_id": chatID,
	}).Info("Chat deleted")
	return nil
}

// Invalidate drops the owner's cached entries. The next read rescans disk.
func (s *Service) Invalidate(owner string) {
	s.mu.Lock()
	delete(s.owners, owner)
	s.mu.Unlock()
}

// CachedOwners returns how many owners currently have loaded metadata
func (s *Service) CachedOwners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owners)
}

// lookupLocked resolves a chat under the owner's write lock, falling back
// to disk for files created outside this process.
func (s *Service) lookupLocked(owner, chatID string, st *ownerState) (*models.ChatSession, error) {
	if sess, ok := st.chats[chatID]; ok {
		return sess, nil
	}
	sess, err := s.store.Load(owner, chatID)
	if err != nil {
		return nil, err
	}
	st.chats[chatID] = sess
	return sess, nil
}

// sanitizeChatID strips filename-illegal characters and rejects names that
// sanitize away to nothing or would escape the owner's directory.
func sanitizeChatID(name string) (string, error) {
	cleaned := illegalChars.ReplaceAllString(name, "")
	cleaned = strings.Trim(strings.TrimSpace(cleaned), ".")
	if cleaned == "" || cleaned == ".." || strings.Contains(cleaned, "..") {
		return "", apperrors.ErrValidation
	}
	return cleaned, nil
}

func copyMessages(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	copy(out, messages)
	return out
}
