package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cmx.com/pkg/ident"
	"cmx.com/pkg/insurance"
	"cmx.com/pkg/kafka"
	"cmx.com/pkg/liquidation"
	"cmx.com/pkg/market"
	"cmx.com/pkg/markprice"
	cmxnats "cmx.com/pkg/nats"
	"cmx.com/pkg/position"
	"cmx.com/pkg/riskparam"
)

// =============================================================================
// Mock 组件实现
// =============================================================================

// ConsoleEventSink 把强平事件打到控制台 (不配 Kafka 时的退路)
type ConsoleEventSink struct{}

func (ConsoleEventSink) Publish(ev liquidation.Event) error {
	log.Printf("[Event] ⚡️ LIQUIDATED %s | user=%s market=%s | price=%.4f size=%.2f | fee=%.2f fund=%.2f reward=%.2f | reason=%s",
		ev.PositionID, ev.UserID, ev.MarketID,
		ev.LiquidationPrice, ev.LiquidationSize,
		ev.LiquidationFee, ev.InsuranceFundContribution, ev.LiquidatorReward, ev.Reason)
	return nil
}

// seedPosition 开仓参数
type seedPosition struct {
	userID   string
	marketID string
	category riskparam.Category
	side     position.Side
	size     float64
	entry    float64
	leverage int
}

// =============================================================================
// 主程序
// =============================================================================

func main() {
	var (
		mysqlDSN     = flag.String("mysql", "", "MySQL DSN (空 = 纯内存)")
		redisAddr    = flag.String("redis", "", "Redis 地址 (空 = 不启用缓存)")
		natsURL      = flag.String("nats", "", "NATS 地址 (空 = 不外发告警)")
		kafkaBrokers = flag.String("kafka", "", "Kafka broker 列表, 逗号分隔 (空 = 控制台事件)")
	)
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Println("🚀 Starting Commodity Risk Engine Simulation...")

	if err := ident.Init(1); err != nil {
		log.Fatalf("Failed to init ID generator: %v", err)
	}

	ctx := context.Background()

	// 1. 存储层 (可选)
	// -------------------------------------------------------------------------
	var db *gorm.DB
	if *mysqlDSN != "" {
		var err error
		db, err = gorm.Open(mysql.Open(*mysqlDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			log.Fatalf("Failed to connect MySQL: %v", err)
		}
		db.AutoMigrate(
			&riskparam.RiskParameters{},
			&position.Position{},
			&insurance.Balance{},
			&insurance.FlowLog{},
		)
		log.Println("✅ MySQL connected")
	}

	var rdb *redis.Client
	if *redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect Redis: %v", err)
		}
		log.Println("✅ Redis connected")
	}

	// 2. 风险参数表: 有 DB 走加载+播种, 否则用内置默认
	// -------------------------------------------------------------------------
	var table *riskparam.Table
	if db != nil {
		var err error
		table, err = riskparam.NewMySQLLoader(db).Load(ctx)
		if err != nil {
			log.Fatalf("Failed to load risk parameters: %v", err)
		}
	} else {
		table = riskparam.DefaultTable()
	}

	// 3. 仓位簿: 有完整存储层时从持久层重建
	// -------------------------------------------------------------------------
	var book *position.Book
	if db != nil && rdb != nil {
		repo := position.NewCachedRepository(db, rdb)
		restored, err := position.RestoreBook(ctx, repo)
		if err != nil {
			log.Fatalf("Failed to restore position book: %v", err)
		}
		book = restored
		log.Printf("✅ Position book restored: %d open positions", book.Len())
	} else {
		book = position.NewBook(nil)
	}

	priceSvc := markprice.NewService()
	fund := insurance.NewFund(db)

	// 4. 强平引擎
	// -------------------------------------------------------------------------
	cfg := liquidation.DefaultConfig()
	cfg.ScanInterval = 2 * time.Second         // 演示用, 生产默认 5s
	cfg.HealthCheckInterval = 15 * time.Second // 演示用, 生产默认 60s

	engine := liquidation.NewEngine(cfg, book, priceSvc, table)
	engine.SetInsuranceFund(fund)

	if *kafkaBrokers != "" {
		producer, err := kafka.NewProducer(
			kafka.DefaultProducerConfig(strings.Split(*kafkaBrokers, ",")))
		if err != nil {
			log.Fatalf("Failed to create Kafka producer: %v", err)
		}
		defer producer.Close()
		engine.SetEventSink(liquidation.NewKafkaSink(producer))
		log.Println("✅ Kafka event stream connected")
	} else {
		engine.SetEventSink(ConsoleEventSink{})
	}

	if *natsURL != "" {
		pub, err := cmxnats.NewPublisher(*natsURL)
		if err != nil {
			log.Fatalf("Failed to connect NATS: %v", err)
		}
		defer pub.Close()
		alerter := liquidation.NewNATSAlerter(pub)
		engine.OnWatchlist(alerter.NotifyWatchlist)
		priceSvc.OnStale(alerter.NotifyStaleFeed)

		// 外部行情网关也可以直接往 prices.<marketID> 推
		ingestor, err := markprice.NewIngestor(*natsURL, priceSvc)
		if err != nil {
			log.Fatalf("Failed to start price ingestor: %v", err)
		}
		defer ingestor.Close()
		log.Println("✅ NATS alerts + price ingestion connected")
	} else {
		engine.OnWatchlist(func(pos position.Position) {
			log.Printf("[Watchlist] ⚠️ Position %s (user=%s, market=%s) health factor %.3f",
				pos.ID, pos.UserID, pos.MarketID, pos.HealthFactor)
		})
	}

	if err := engine.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	defer engine.Stop()
	log.Println("✅ Liquidation Engine Started")

	// 5. 初始仓位 (四个商品市场, 各一笔; 重建出仓位时跳过播种)
	// -------------------------------------------------------------------------
	seeds := []seedPosition{
		{"user_1", "GOLD-PERP", riskparam.CategoryPreciousMetals, position.SideLong, 10, 2650, 15},
		{"user_2", "WTI-PERP", riskparam.CategoryEnergy, position.SideShort, 100, 85.2, 10},
		{"user_3", "SILVER-PERP", riskparam.CategoryPreciousMetals, position.SideLong, 1000, 31.5, 8},
		{"user_4", "COPPER-PERP", riskparam.CategoryIndustrialMetals, position.SideLong, 500, 4.25, 12},
	}
	if book.Len() == 0 {
		for _, s := range seeds {
			margin := s.entry * s.size / float64(s.leverage)
			_, err := book.Open(position.OpenRequest{
				UserID:     s.userID,
				MarketID:   s.marketID,
				Category:   s.category,
				Side:       s.side,
				Size:       s.size,
				EntryPrice: s.entry,
				Leverage:   s.leverage,
				Margin:     margin,
			})
			if err != nil {
				log.Fatalf("Failed to open position for %s: %v", s.userID, err)
			}
		}
	}
	for _, s := range seeds {
		priceSvc.UpdatePrice(s.marketID, s.entry)
	}

	// 6. 行情模拟器 (引擎不产生价格, 随机性全部在这里)
	// -------------------------------------------------------------------------
	sim := market.NewSimulator(200 * time.Millisecond)
	for _, s := range seeds {
		params, err := table.Get(s.category)
		if err != nil {
			log.Fatalf("Missing risk parameters: %v", err)
		}
		// 年化波动率按分类的波动性倍数缩放
		sim.AddMarket(s.marketID, s.entry, 0.2*params.VolatilityScalar)
	}

	bcast := market.NewBroadcaster()
	feedSub := bcast.Subscribe()

	// 最后已知价, 暴跌场景在它的基础上施压
	var priceMu sync.Mutex
	lastPrice := make(map[string]float64)

	go func() {
		for tick := range feedSub {
			priceSvc.UpdatePrice(tick.MarketID, tick.Price)
			priceMu.Lock()
			lastPrice[tick.MarketID] = tick.Price
			priceMu.Unlock()
		}
	}()

	go func() {
		for tick := range sim.Start() {
			bcast.Broadcast(tick)
		}
	}()
	log.Println("✅ Market Simulator Started")

	// 7. 暴跌剧本: 12 秒后对每个市场施加伤害方向的冲击
	// -------------------------------------------------------------------------
	sideByMarket := make(map[string]position.Side, len(seeds))
	for _, s := range seeds {
		sideByMarket[s.marketID] = s.side
	}

	go func() {
		time.Sleep(12 * time.Second)
		sim.Stop()
		log.Println("[Market] 📉 FORCED CRASH! Re-seeding all markets at adverse prices")

		crashed := market.NewSimulator(200 * time.Millisecond)
		priceMu.Lock()
		for marketID, price := range lastPrice {
			if sideByMarket[marketID] == position.SideLong {
				price *= 0.70 // 多头: 跌 30%
			} else {
				price *= 1.30 // 空头: 涨 30%
			}
			crashed.AddMarket(marketID, price, 0.4)
		}
		priceMu.Unlock()

		go func() {
			for tick := range crashed.Start() {
				bcast.Broadcast(tick)
			}
		}()
	}()

	// 8. 周期性状态报告 + 压测
	// -------------------------------------------------------------------------
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := engine.GetStats()
			log.Printf("[Report] positions=%d atRisk=%d queued=%d liquidations=%d fund=%.2f USD",
				stats.TotalPositions, stats.AtRiskPositions, stats.QueuedCandidates,
				stats.HistorySize, fund.Balance("USD"))

			if result, err := engine.SimulateMarketStress(liquidation.ScenarioSevere); err == nil {
				log.Printf("[Report] stress(severe): wouldLiquidate=%d projectedLoss=%.2f",
					result.LiquidationsTriggered, result.TotalLoss)
			}
		}
	}()

	// 等待信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("🛑 Shutting down...")
	sim.Stop()
	bcast.Close()
}
