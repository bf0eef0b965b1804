// 文件: pkg/riskparam/mysql_repo.go
// 风险参数持久化 (MySQL)
//
// 【启动流程】
// 1. 从 risk_parameters 表读取全部行
// 2. 表为空时写入默认参数 (首次部署自动初始化)
// 3. 构建只读 Table 供引擎使用

package riskparam

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"
)

// MySQLLoader 从 MySQL 加载风险参数表
type MySQLLoader struct {
	db *gorm.DB
}

func NewMySQLLoader(db *gorm.DB) *MySQLLoader {
	return &MySQLLoader{db: db}
}

// Load 加载参数表, 空表时播种默认值
func (l *MySQLLoader) Load(ctx context.Context) (*Table, error) {
	var rows []RiskParameters
	if err := l.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		rows = DefaultParameters()
		if err := l.seed(ctx, rows); err != nil {
			return nil, err
		}
		log.Printf("[RiskParam] Seeded %d default categories", len(rows))
	}

	table, err := NewTable(rows)
	if err != nil {
		return nil, err
	}

	log.Printf("[RiskParam] Loaded %d categories", len(rows))
	return table, nil
}

func (l *MySQLLoader) seed(ctx context.Context, rows []RiskParameters) error {
	now := time.Now().UnixMilli()
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			rows[i].UpdatedAt = now
			if err := tx.Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
