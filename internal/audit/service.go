// Package audit provides tamper-evident audit logging. Entries are
// hash-chained: each record's hash covers its content plus the previous
// record's hash, so deletion or mutation breaks the chain.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultQueueSize = 1024

// Log is one audit trail entry.
type Log struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	ActorID      uuid.UUID  `json:"actor_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"index"`
	ResourceType string     `json:"resource_type" gorm:"index"`
	ResourceID   string     `json:"resource_id"`
	WorkspaceID  *uuid.UUID `json:"workspace_id,omitempty" gorm:"type:uuid;index"`
	DetailsJSON  string     `json:"-" gorm:"column:details;type:jsonb"`
	PreviousHash string     `json:"previous_hash"`
	Hash         string     `json:"hash"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
}

// TableName sets the audit table.
func (Log) TableName() string {
	return "audit_logs"
}

// Details decodes the entry details.
func (l *Log) Details() map[string]interface{} {
	if l.DetailsJSON == "" {
		return nil
	}
	var details map[string]interface{}
	if err := json.Unmarshal([]byte(l.DetailsJSON), &details); err != nil {
		return nil
	}
	return details
}

// Service writes hash-chained audit entries asynchronously. Log is
// fire-and-forget: callers never block on or see persistence failures.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger

	queue    chan *Log
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	lastHash string
	running  bool
}

// NewService creates the audit service and migrates its table. queueSize
// bounds the in-flight entry buffer; zero uses the default.
func NewService(db *gorm.DB, logger *zap.Logger, queueSize int) (*Service, error) {
	if err := db.AutoMigrate(&Log{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate audit table")
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	s := &Service{
		db:       db,
		logger:   logger,
		queue:    make(chan *Log, queueSize),
		shutdown: make(chan struct{}),
	}
	if err := s.loadChainHead(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the background writer.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.wg.Add(1)
	go s.writer()
}

// Stop drains the queue and stops the writer.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.shutdown)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Log queues an audit entry. Queue overflow drops the entry with a warning
// rather than blocking the caller's request path.
func (s *Service) Log(ctx context.Context, actor uuid.UUID, action, resourceType, resourceID string, details map[string]interface{}, workspaceID uuid.UUID) {
	entry := &Log{
		ID:           uuid.New(),
		ActorID:      actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		// Postgres timestamptz keeps microseconds at most; the hash input
		// must match what a database round-trip returns.
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if workspaceID != uuid.Nil {
		ws := workspaceID
		entry.WorkspaceID = &ws
	}
	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			entry.DetailsJSON = string(data)
		}
	}

	select {
	case s.queue <- entry:
	default:
		s.logger.Warn("audit queue full, dropping entry",
			zap.String("action", action),
			zap.String("resource_type", resourceType))
	}
}

// VerifyChain walks the stored entries in insertion order and recomputes
// each hash. Returns the id of the first broken entry, or nil when intact.
func (s *Service) VerifyChain(ctx context.Context) (*uuid.UUID, error) {
	var entries []Log
	err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load audit chain")
	}

	previous := ""
	for i := range entries {
		entry := &entries[i]
		if entry.PreviousHash != previous || entry.Hash != chainHash(entry) {
			id := entry.ID
			return &id, nil
		}
		previous = entry.Hash
	}
	return nil, nil
}

func (s *Service) writer() {
	defer s.wg.Done()
	for {
		select {
		case entry := <-s.queue:
			s.persist(entry)
		case <-s.shutdown:
			for {
				select {
				case entry := <-s.queue:
					s.persist(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) persist(entry *Log) {
	s.mu.Lock()
	entry.PreviousHash = s.lastHash
	entry.Hash = chainHash(entry)
	s.lastHash = entry.Hash
	s.mu.Unlock()

	if err := s.db.Create(entry).Error; err != nil {
		s.logger.Error("failed to persist audit entry",
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

func (s *Service) loadChainHead() error {
	var head Log
	err := s.db.Order("created_at DESC, id DESC").First(&head).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return errors.Wrap(err, "failed to load audit chain head")
	}
	s.lastHash = head.Hash
	return nil
}

func chainHash(entry *Log) string {
	input := struct {
		ActorID      uuid.UUID  `json:"actor_id"`
		Action       string     `json:"action"`
		ResourceType string     `json:"resource_type"`
		ResourceID   string     `json:"resource_id"`
		WorkspaceID  *uuid.UUID `json:"workspace_id,omitempty"`
		Details      string     `json:"details,omitempty"`
		CreatedAt    time.Time  `json:"created_at"`
		PreviousHash string     `json:"previous_hash"`
	}{
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		WorkspaceID:  entry.WorkspaceID,
		Details:      entry.DetailsJSON,
		CreatedAt:    entry.CreatedAt,
		PreviousHash: entry.PreviousHash,
	}
	data, _ := json.Marshal(input)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}
