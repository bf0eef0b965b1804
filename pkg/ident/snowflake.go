// 文件: pkg/ident/snowflake.go
// 雪花算法 ID 生成器
// 使用开源库: github.com/bwmarrin/snowflake

package ident

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node     *snowflake.Node
	initOnce sync.Once
)

// Init 初始化雪花算法
// nodeID: 节点ID (0-1023)
func Init(nodeID int64) error {
	var err error
	initOnce.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

func generate() int64 {
	if node == nil {
		// 未初始化则使用默认节点0
		Init(0)
	}
	return node.Generate().Int64()
}

// NewPositionID 生成仓位ID, 形如 pos_1837465...
func NewPositionID() string {
	return fmt.Sprintf("pos_%d", generate())
}

// NewEventID 生成强平事件ID, 形如 liq_1837465...
func NewEventID() string {
	return fmt.Sprintf("liq_%d", generate())
}
