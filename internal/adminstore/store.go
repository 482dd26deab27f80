// Package adminstore is the admin-facing, explicitly out-of-core-scope
// observability mirror: a request log and a client-model routing table,
// persisted through gorm over the pure-Go glebarez sqlite driver rather
// than the JSON file store the core pool/keystore/identity packages use.
// Nothing in the core request path reads from this store; it only ever
// receives best-effort writes.
package adminstore

import (
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the gorm handle to the admin sqlite file.
type Store struct {
	db *gorm.DB
}

// Open attaches to (creating if absent) the sqlite file at path and
// migrates the admin-facing schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RequestLog{}, &ModelRoute{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// RecordAsync mirrors one request/response into the admin log for both
// dialects. It is best-effort: a write failure is logged, never
// returned, so the admin mirror can never fail a client request.
func (s *Store) RecordAsync(entry RequestLog) {
	if s == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	if err := s.db.Create(&entry).Error; err != nil {
		log.Printf("⚠️ adminstore: record request failed: %v", err)
	}
}

// Stats aggregates totals across every mirrored request.
func (s *Store) Stats() (RequestStats, error) {
	var stats RequestStats
	if s == nil {
		return stats, nil
	}
	if err := s.db.Model(&RequestLog{}).Count(&stats.TotalRequests).Error; err != nil {
		return stats, err
	}
	if err := s.db.Model(&RequestLog{}).
		Where("status >= 200 AND status < 400").
		Count(&stats.SuccessCount).Error; err != nil {
		return stats, err
	}
	stats.ErrorCount = stats.TotalRequests - stats.SuccessCount
	return stats, nil
}

// RecentRequests returns the most recently mirrored requests, newest first.
func (s *Store) RecentRequests(limit int) ([]RequestLog, error) {
	var logs []RequestLog
	if s == nil {
		return logs, nil
	}
	if limit <= 0 {
		limit = 50
	}
	err := s.db.Order("timestamp desc").Limit(limit).Find(&logs).Error
	return logs, err
}

// UpsertRoute records or updates the client-model to wire-model resolution
// the translator produced for this request.
func (s *Store) UpsertRoute(clientModel, wireModel string, isThinking bool) {
	if s == nil || clientModel == "" {
		return
	}
	var existing ModelRoute
	result := s.db.Where("client_model = ?", clientModel).First(&existing)
	if result.Error != nil {
		err := s.db.Create(&ModelRoute{
			ClientModel: clientModel,
			WireModel:   wireModel,
			IsThinking:  isThinking,
			UpdatedAt:   time.Now(),
		}).Error
		if err != nil {
			log.Printf("⚠️ adminstore: create route failed: %v", err)
		}
		return
	}
	existing.WireModel = wireModel
	existing.IsThinking = isThinking
	existing.UpdatedAt = time.Now()
	if err := s.db.Save(&existing).Error; err != nil {
		log.Printf("⚠️ adminstore: update route failed: %v", err)
	}
}

// ListRoutes returns every observed client-model routing, for the
// (interface-only) admin surface.
func (s *Store) ListRoutes() ([]ModelRoute, error) {
	var routes []ModelRoute
	if s == nil {
		return routes, nil
	}
	err := s.db.Find(&routes).Error
	return routes, err
}
