// 文件: pkg/insurance/fund.go
// 保险基金
//
// 【核心作用】
// 每次强平按名义价值抽取 insuranceFundFeeRate 注入基金,
// 为穿仓损失提供兜底池。
//
// 【资金来源】
// 1. 强平抽成 (LIQUIDATION_FEE)
// 2. 平台注资 (DEPOSIT)

package insurance

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	ErrInvalidAmount = errors.New("amount must be positive")
)

// =============================================================================
// 数据模型
// =============================================================================

// Balance 保险基金余额 (每个结算货币一个池)
type Balance struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	Currency  string  `gorm:"column:currency;type:varchar(16);uniqueIndex"` // USD, USDT
	Balance   float64 `gorm:"column:balance"`
	UpdatedAt int64   `gorm:"column:updated_at"`
}

func (Balance) TableName() string {
	return "insurance_fund_balances"
}

// FlowLog 保险基金流水
type FlowLog struct {
	ID            uint    `gorm:"primaryKey;autoIncrement"`
	Currency      string  `gorm:"column:currency;type:varchar(16);index"`
	ChangeType    string  `gorm:"column:change_type"` // DEPOSIT / LIQUIDATION_FEE
	Amount        float64 `gorm:"column:amount"`      // 正=增加，负=减少
	BalanceAfter  float64 `gorm:"column:balance_after"`
	RelatedUserID string  `gorm:"column:related_user_id;type:varchar(64)"` // 关联用户 (强平时)
	RelatedMarket string  `gorm:"column:related_market;type:varchar(64)"`  // 关联市场
	Remark        string  `gorm:"column:remark;type:text"`
	CreatedAt     int64   `gorm:"column:created_at;index"`
}

func (FlowLog) TableName() string {
	return "insurance_fund_logs"
}

// =============================================================================
// Fund
// =============================================================================

// Fund 保险基金
//
// db 可为 nil: 纯内存模式 (测试/仿真), 只维护缓存不落库。
type Fund struct {
	db *gorm.DB

	// 内存缓存 (减少 DB 查询)
	// currency -> balance
	mu       sync.RWMutex
	balances map[string]float64
}

func NewFund(db *gorm.DB) *Fund {
	f := &Fund{
		db:       db,
		balances: make(map[string]float64),
	}
	if db != nil {
		f.loadAll()
	}
	return f
}

// Balance 获取保险基金余额
func (f *Fund) Balance(currency string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.balances[currency]
}

// Credit 注入保险基金
//
// 【调用场景】
// 1. 强平抽成: 执行器按 insuranceFundFeeRate 划转
// 2. 平台注资
func (f *Fund) Credit(
	ctx context.Context,
	currency string,
	amount float64,
	changeType string,
	userID string,
	marketID string,
	remark string,
) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	if f.db == nil {
		f.mu.Lock()
		f.balances[currency] += amount
		newBalance := f.balances[currency]
		f.mu.Unlock()
		log.Printf("[InsuranceFund] Credited %.4f %s, new balance: %.4f, type: %s",
			amount, currency, newBalance, changeType)
		return nil
	}

	return f.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UnixMilli()

		// 1. 查询或创建余额记录
		var balance Balance
		err := tx.Where("currency = ?", currency).First(&balance).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			balance = Balance{Currency: currency, Balance: 0, UpdatedAt: now}
			if err := tx.Create(&balance).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		// 2. 增加余额
		newBalance := balance.Balance + amount
		err = tx.Model(&balance).Updates(map[string]any{
			"balance":    newBalance,
			"updated_at": now,
		}).Error
		if err != nil {
			return err
		}

		// 3. 记录流水
		logEntry := &FlowLog{
			Currency:      currency,
			ChangeType:    changeType,
			Amount:        amount,
			BalanceAfter:  newBalance,
			RelatedUserID: userID,
			RelatedMarket: marketID,
			Remark:        remark,
			CreatedAt:     now,
		}
		if err := tx.Create(logEntry).Error; err != nil {
			return err
		}

		// 4. 更新缓存
		f.mu.Lock()
		f.balances[currency] = newBalance
		f.mu.Unlock()

		log.Printf("[InsuranceFund] Credited %.4f %s, new balance: %.4f, type: %s",
			amount, currency, newBalance, changeType)
		return nil
	})
}

// AllBalances 获取所有余额 (管理接口)
func (f *Fund) AllBalances() map[string]float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make(map[string]float64, len(f.balances))
	for k, v := range f.balances {
		result[k] = v
	}
	return result
}

// loadAll 启动时加载所有余额到缓存
func (f *Fund) loadAll() {
	var balances []Balance
	f.db.Find(&balances)

	f.mu.Lock()
	for _, b := range balances {
		f.balances[b.Currency] = b.Balance
	}
	f.mu.Unlock()

	log.Printf("[InsuranceFund] Loaded %d currency balances", len(balances))
}
