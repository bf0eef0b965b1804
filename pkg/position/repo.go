// 文件: pkg/position/repo.go
// 仓位存储层 (Redis 缓存 + MySQL 持久化)
//
// PositionBook 是权威数据, 这里只做镜像:
// 进程重启后可从 MySQL 重建内存簿。

package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// =============================================================================
// 接口定义
// =============================================================================

type Repository interface {
	// 查询
	GetByID(ctx context.Context, positionID string) (*Position, error)
	ListOpen(ctx context.Context) ([]*Position, error)

	// 保存 (写 DB + 更新 Redis)
	Save(ctx context.Context, pos *Position) error

	// 删除 (平仓/强平)
	Delete(ctx context.Context, positionID string) error
}

// =============================================================================
// Redis Key
// =============================================================================

const (
	// position:{positionID}
	positionKeyPattern = "position:%s"

	positionCacheTTL = 24 * time.Hour
)

func positionKey(positionID string) string {
	return fmt.Sprintf(positionKeyPattern, positionID)
}

// =============================================================================
// 实现
// =============================================================================

type CachedRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewCachedRepository(db *gorm.DB, rds *redis.Client) *CachedRepository {
	return &CachedRepository{db: db, redis: rds}
}

// GetByID 获取单个仓位
func (r *CachedRepository) GetByID(ctx context.Context, positionID string) (*Position, error) {
	key := positionKey(positionID)

	// 1. 查 Redis
	data, err := r.redis.Get(ctx, key).Bytes()
	if err == nil {
		var pos Position
		if json.Unmarshal(data, &pos) == nil {
			return &pos, nil
		}
	}

	// 2. 查 DB
	var pos Position
	err = r.db.WithContext(ctx).Where("id = ?", positionID).First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 无此仓位
		}
		return nil, err
	}

	// 3. 回填 Redis
	go r.cachePosition(context.Background(), &pos)

	return &pos, nil
}

// ListOpen 列出全部在押仓位 (重启重建内存簿用)
func (r *CachedRepository) ListOpen(ctx context.Context) ([]*Position, error) {
	var positions []*Position
	err := r.db.WithContext(ctx).Find(&positions).Error
	return positions, err
}

// Save 保存仓位 (DB upsert + Redis)
func (r *CachedRepository) Save(ctx context.Context, pos *Position) error {
	if err := r.db.WithContext(ctx).Save(pos).Error; err != nil {
		return err
	}
	r.cachePosition(ctx, pos)
	return nil
}

// Delete 删除仓位
func (r *CachedRepository) Delete(ctx context.Context, positionID string) error {
	err := r.db.WithContext(ctx).
		Where("id = ?", positionID).
		Delete(&Position{}).Error
	if err != nil {
		return err
	}
	r.redis.Del(ctx, positionKey(positionID))
	return nil
}

func (r *CachedRepository) cachePosition(ctx context.Context, pos *Position) {
	data, _ := json.Marshal(pos)
	r.redis.Set(ctx, positionKey(pos.ID), data, positionCacheTTL)
}

// =============================================================================
// 重启恢复
// =============================================================================

// RestoreBook 从持久层重建内存仓位簿
func RestoreBook(ctx context.Context, repo Repository) (*Book, error) {
	book := NewBook(repo)

	positions, err := repo.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore position book: %w", err)
	}

	book.mu.Lock()
	for _, p := range positions {
		book.positions[p.ID] = p
	}
	book.mu.Unlock()

	return book, nil
}
