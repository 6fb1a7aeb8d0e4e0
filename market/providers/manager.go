// Package providers 封装行情数据源（东方财富、新浪）及自动切换
package providers

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DataProvider 数据提供者接口
type DataProvider interface {
	Name() string
	Priority() int
	FetchTick(ctx context.Context, symbol string) (*Tick, error)
	FetchKLines(ctx context.Context, symbol string, days int) ([]KLine, error)
	FetchSpot(ctx context.Context) ([]SpotRow, error)
	FetchFundFlow(ctx context.Context, symbol string) (*FundFlow, error)
	FetchInfo(ctx context.Context, symbol string) (*SecurityInfo, error)
	HealthCheck() error
}

// Tick 实时行情数据
type Tick struct {
	Symbol    string
	Name      string
	Price     float64
	Volume    int64
	Turnover  float64
	High      float64
	Low       float64
	Open      float64
	PreClose  float64
	Time      time.Time
	Change    float64
	ChangePct float64
}

// KLine 日K线数据（前复权）
type KLine struct {
	Symbol    string  `json:"-"`
	Date      string  `json:"date"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	Turnover  float64 `json:"turnover"`
	ChangePct float64 `json:"-"`
}

// SpotRow 全市场快照单行。Change60/ChangeYTD在数据源缺失时为NaN。
type SpotRow struct {
	Code         string
	Name         string
	Price        float64
	ChangePct    float64
	TurnoverRate float64
	VolumeRatio  float64
	TotalMV      float64
	PETTM        float64
	Change60     float64
	ChangeYTD    float64
}

// FundFlow 单只股票最近交易日的大单资金流向（净额，元）
type FundFlow struct {
	SuperIn float64 `json:"super_in"`
	LargeIn float64 `json:"large_in"`
}

// SecurityInfo 个股基础信息。上游字段不稳定，缺失项为零值。
type SecurityInfo struct {
	Code     string
	Name     string
	Industry string
	TotalMV  float64
	PETTM    float64
	ROE      float64
}

var (
	// ErrProviderNotFound 数据提供者不存在
	ErrProviderNotFound = errors.New("data provider not found")
	// ErrAllProvidersFailed 所有数据源均失败
	ErrAllProvidersFailed = errors.New("all data providers failed")
	// ErrNotSupported 当前数据源不支持该查询
	ErrNotSupported = errors.New("operation not supported by provider")
	// ErrSymbolNotFound 股票代码不存在
	ErrSymbolNotFound = errors.New("symbol not found")
)

// Manager 数据源管理器，按优先级自动切换
type Manager struct {
	providers           []DataProvider
	primary             DataProvider
	health              map[string]bool
	healthMu            sync.RWMutex
	healthCheckInterval time.Duration
	stopChan            chan struct{}
	stopOnce            sync.Once
	mu                  sync.RWMutex
}

// NewManager 创建数据源管理器
func NewManager() *Manager {
	return &Manager{
		health:              make(map[string]bool),
		healthCheckInterval: 30 * time.Second,
		stopChan:            make(chan struct{}),
	}
}

// AddProvider 添加数据提供者，优先级最高者为主数据源
func (m *Manager) AddProvider(p DataProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers = append(m.providers, p)
	m.healthMu.Lock()
	m.health[p.Name()] = true
	m.healthMu.Unlock()

	if m.primary == nil || p.Priority() > m.primary.Priority() {
		m.primary = p
	}
}

// SetPrimary 指定主数据源
func (m *Manager) SetPrimary(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.providers {
		if p.Name() == name {
			m.primary = p
			return nil
		}
	}
	return ErrProviderNotFound
}

// ordered 返回主数据源优先的提供者列表快照
func (m *Manager) ordered() []DataProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DataProvider, 0, len(m.providers))
	if m.primary != nil {
		out = append(out, m.primary)
	}
	for _, p := range m.providers {
		if p != m.primary {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) isHealthy(name string) bool {
	m.healthMu.RLock()
	defer m.healthMu.RUnlock()
	return m.health[name]
}

// FetchTick 获取实时行情（自动切换数据源）
func (m *Manager) FetchTick(ctx context.Context, symbol string) (*Tick, error) {
	for i, p := range m.ordered() {
		if i > 0 && !m.isHealthy(p.Name()) {
			continue
		}
		tick, err := p.FetchTick(ctx, symbol)
		if err == nil {
			return tick, nil
		}
		if errors.Is(err, ErrNotSupported) {
			continue
		}
		zap.L().Warn("provider tick fetch failed",
			zap.String("provider", p.Name()), zap.String("symbol", symbol), zap.Error(err))
	}
	return nil, ErrAllProvidersFailed
}

// FetchKLines 获取前复权日K线（自动切换数据源）
func (m *Manager) FetchKLines(ctx context.Context, symbol string, days int) ([]KLine, error) {
	for i, p := range m.ordered() {
		if i > 0 && !m.isHealthy(p.Name()) {
			continue
		}
		klines, err := p.FetchKLines(ctx, symbol, days)
		if err == nil && len(klines) > 0 {
			return klines, nil
		}
		if err != nil && errors.Is(err, ErrNotSupported) {
			continue
		}
		zap.L().Warn("provider kline fetch failed",
			zap.String("provider", p.Name()), zap.String("symbol", symbol), zap.Error(err))
	}
	return nil, ErrAllProvidersFailed
}

// FetchSpot 获取全市场快照（仅支持该查询的数据源参与切换）
func (m *Manager) FetchSpot(ctx context.Context) ([]SpotRow, error) {
	for i, p := range m.ordered() {
		if i > 0 && !m.isHealthy(p.Name()) {
			continue
		}
		rows, err := p.FetchSpot(ctx)
		if err == nil && len(rows) > 0 {
			return rows, nil
		}
		if err != nil && errors.Is(err, ErrNotSupported) {
			continue
		}
		zap.L().Warn("provider spot fetch failed",
			zap.String("provider", p.Name()), zap.Error(err))
	}
	return nil, ErrAllProvidersFailed
}

// FetchFundFlow 获取个股资金流向
func (m *Manager) FetchFundFlow(ctx context.Context, symbol string) (*FundFlow, error) {
	for i, p := range m.ordered() {
		if i > 0 && !m.isHealthy(p.Name()) {
			continue
		}
		ff, err := p.FetchFundFlow(ctx, symbol)
		if err == nil {
			return ff, nil
		}
		if errors.Is(err, ErrNotSupported) {
			continue
		}
		zap.L().Warn("provider fund flow fetch failed",
			zap.String("provider", p.Name()), zap.String("symbol", symbol), zap.Error(err))
	}
	return nil, ErrAllProvidersFailed
}

// FetchInfo 获取个股基础信息
func (m *Manager) FetchInfo(ctx context.Context, symbol string) (*SecurityInfo, error) {
	for i, p := range m.ordered() {
		if i > 0 && !m.isHealthy(p.Name()) {
			continue
		}
		info, err := p.FetchInfo(ctx, symbol)
		if err == nil {
			return info, nil
		}
		if errors.Is(err, ErrNotSupported) {
			continue
		}
		zap.L().Warn("provider info fetch failed",
			zap.String("provider", p.Name()), zap.String("symbol", symbol), zap.Error(err))
	}
	return nil, ErrAllProvidersFailed
}

// StartHealthChecks 启动后台健康检查
func (m *Manager) StartHealthChecks() {
	m.mu.RLock()
	providers := make([]DataProvider, len(m.providers))
	copy(providers, m.providers)
	m.mu.RUnlock()

	for _, p := range providers {
		go m.monitor(p)
	}
}

func (m *Manager) monitor(p DataProvider) {
	ticker := time.NewTicker(m.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := p.HealthCheck()
			m.healthMu.Lock()
			m.health[p.Name()] = err == nil
			m.healthMu.Unlock()
			if err != nil {
				zap.L().Warn("provider health check failed",
					zap.String("provider", p.Name()), zap.Error(err))
			}
		case <-m.stopChan:
			return
		}
	}
}

// StopHealthChecks 停止健康检查
func (m *Manager) StopHealthChecks() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// Status 各数据源健康状态
func (m *Manager) Status() map[string]bool {
	m.healthMu.RLock()
	defer m.healthMu.RUnlock()

	out := make(map[string]bool, len(m.health))
	for name, ok := range m.health {
		out[name] = ok
	}
	return out
}

// PrimaryName 当前主数据源名称
func (m *Manager) PrimaryName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.primary == nil {
		return ""
	}
	return m.primary.Name()
}
