// 文件: pkg/market/simulator.go
// 商品行情模拟器 - 几何布朗运动价格生成
//
// 【边界声明】
// 风控引擎本身不产生任何价格: 全部随机性被限制在这个包里。
// 模拟器只是标记价格服务的一个喂价方, 生产部署换成真实行情源即可。

package market

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Tick 一次价格更新
type Tick struct {
	MarketID string
	Price    float64
	Ts       time.Time
}

// walker 单个市场的 GBM 随机游走状态
type walker struct {
	marketID   string
	price      float64
	volatility float64 // 年化波动率
	lastUpdate time.Time
}

// Simulator 多市场行情模拟器
//
// 每个市场按各自的年化波动率独立游走,
// 所有市场共享同一个定时器与随机源 (单 goroutine, 无锁竞争)。
type Simulator struct {
	interval time.Duration

	// mu 只保护 walkers; 生命周期状态由 lifeMu 单独管,
	// 避免 Stop 等待 loop 时互相持锁
	mu      sync.Mutex
	walkers []*walker

	lifeMu  sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	outCh chan Tick
}

// NewSimulator 创建模拟器
func NewSimulator(interval time.Duration) *Simulator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Simulator{
		interval: interval,
		stopCh:   make(chan struct{}),
		// 缓冲抵抗下游短暂停顿; 满了直接丢, 旧行情没有价值
		outCh: make(chan Tick, 256),
	}
}

// AddMarket 注册一个市场
//
// volatility 为年化波动率, 非正值回退到 0.2 (商品典型值)。
func (s *Simulator) AddMarket(marketID string, startPrice, volatility float64) {
	if startPrice <= 0 {
		return
	}
	if volatility <= 0 {
		volatility = 0.2
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.walkers = append(s.walkers, &walker{
		marketID:   marketID,
		price:      startPrice,
		volatility: volatility,
		lastUpdate: time.Now(),
	})
}

// Start 启动模拟器, 返回只读行情通道
func (s *Simulator) Start() <-chan Tick {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.running {
		return s.outCh
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s.outCh
}

// Stop 停止模拟器并关闭行情通道
func (s *Simulator) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.running = false
}

// loop 核心循环
func (s *Simulator) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.outCh)

	// 独立随机源: 全局 rand 带锁, 热路径上避开
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for _, w := range s.walkers {
				s.step(w, now, r)
			}
			s.mu.Unlock()
		}
	}
}

// step 对单个市场推进一步 GBM
//
//	S_new = S * exp(-0.5*σ²*dt + σ*sqrt(dt)*Z), Z ~ N(0,1)
//
// 乘法演化保证价格恒为正。
func (s *Simulator) step(w *walker, now time.Time, r *rand.Rand) {
	dt := now.Sub(w.lastUpdate).Hours() / 24 / 365
	if dt <= 0 {
		dt = 1e-9
	}

	sigma := w.volatility
	z := r.NormFloat64()
	w.price *= math.Exp(-0.5*sigma*sigma*dt + sigma*math.Sqrt(dt)*z)
	w.lastUpdate = now

	select {
	case s.outCh <- Tick{MarketID: w.marketID, Price: w.price, Ts: now}:
	default:
		// 下游没跟上, 丢弃这条行情
	}
}
