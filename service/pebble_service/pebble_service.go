package pebble_service

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"live-notify-service/logger"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
)

const (
	CollectionDeliveredNotifications = "delivered_notifications" // 已投递通知 key: notificationID, value: DeliveryRecord
	CollectionReadReceipts           = "read_receipts"           // 已读回执 key: conversationID/userID, value: models.ReadReceipt
)

// PebbleService Pebble 数据库服务，每个集合是基础路径下独立的 pebble 数据库，按需打开
type PebbleService struct {
	collectionMgr *CollectionManager
	mu            sync.RWMutex
	path          string
	log           zerolog.Logger

	// 串行化读-改-写操作
	writeMu sync.Mutex
}

type Config struct {
	DBPath string `yaml:"db_path" json:"db_path"`
}

func DefaultConfig() *Config {
	return &Config{
		DBPath: "./data/live_pebble",
	}
}

// CollectionManager 集合管理器，每个集合一个 pebble 数据库
type CollectionManager struct {
	mu          sync.RWMutex
	collections map[string]*pebble.DB
	basePath    string
	log         zerolog.Logger
}

func NewCollectionManager(basePath string) *CollectionManager {
	return &CollectionManager{
		collections: make(map[string]*pebble.DB),
		basePath:    basePath,
		log:         logger.Component("pebble"),
	}
}

// GetCollection 获取集合，首次使用时打开
func (cm *CollectionManager) GetCollection(collectionName string) (*pebble.DB, error) {
	cm.mu.RLock()
	if db, exists := cm.collections[collectionName]; exists {
		cm.mu.RUnlock()
		return db, nil
	}
	cm.mu.RUnlock()

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if db, exists := cm.collections[collectionName]; exists {
		return db, nil
	}

	dbPath := filepath.Join(cm.basePath, collectionName)
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(8 << 20),
		FormatMajorVersion:          pebble.FormatNewest,
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       1000,
		LBaseMaxBytes:               16 << 20,
		MaxOpenFiles:                1024,
		MemTableSize:                8 << 20,
		MemTableStopWritesThreshold: 4,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collectionName, err)
	}

	cm.collections[collectionName] = db
	cm.log.Info().Str("collection", collectionName).Str("path", dbPath).Msg("collection opened")
	return db, nil
}

func (cm *CollectionManager) CloseAll() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var errs []string
	for name, db := range cm.collections {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("close collection %s: %v", name, err))
		}
	}
	cm.collections = make(map[string]*pebble.DB)

	if len(errs) > 0 {
		return fmt.Errorf("close collections: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (cm *CollectionManager) ListCollections() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	names := make([]string, 0, len(cm.collections))
	for name := range cm.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewPebbleService(config *Config) *PebbleService {
	if config == nil {
		config = DefaultConfig()
	}
	return &PebbleService{
		path:          config.DBPath,
		collectionMgr: NewCollectionManager(config.DBPath),
		log:           logger.Component("pebble"),
	}
}

// Initialize 初始化数据库，提前打开所有集合，路径错误时启动即失败
func (ps *PebbleService) Initialize() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	abs, err := filepath.Abs(ps.path)
	if err != nil {
		return fmt.Errorf("resolve db path: %w", err)
	}
	for _, name := range []string{CollectionDeliveredNotifications, CollectionReadReceipts} {
		if _, err := ps.collectionMgr.GetCollection(name); err != nil {
			return err
		}
	}
	ps.log.Info().Str("path", abs).Msg("pebble ready")
	return nil
}

func (ps *PebbleService) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.collectionMgr == nil {
		return nil
	}
	if err := ps.collectionMgr.CloseAll(); err != nil {
		return err
	}
	ps.log.Info().Msg("pebble closed")
	return nil
}

func (ps *PebbleService) getCollectionDB(collectionName string) (*pebble.DB, error) {
	if ps.collectionMgr == nil {
		return nil, fmt.Errorf("collection manager not initialized")
	}
	return ps.collectionMgr.GetCollection(collectionName)
}

func buildKey(parts ...string) []byte {
	return []byte(strings.Join(parts, "/"))
}

// Stats 获取各集合的记录数
func (ps *PebbleService) Stats() (map[string]int, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	stats := make(map[string]int)
	for _, name := range ps.collectionMgr.ListCollections() {
		n, err := ps.getCollectionCount(name)
		if err != nil {
			return nil, err
		}
		stats[name] = n
	}
	return stats, nil
}

func (ps *PebbleService) getCollectionCount(collectionName string) (int, error) {
	db, err := ps.getCollectionDB(collectionName)
	if err != nil {
		return 0, err
	}

	iter, err := db.NewIter(nil)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	return count, iter.Error()
}
