package providers

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockProvider 模拟数据源，用于测试与离线模式
type MockProvider struct {
	basePrices map[string]float64
	mu         sync.RWMutex
	rand       *rand.Rand
}

// NewMockProvider 创建模拟数据源。固定种子保证测试可复现。
func NewMockProvider() *MockProvider {
	mp := &MockProvider{
		basePrices: make(map[string]float64),
		rand:       rand.New(rand.NewSource(42)),
	}
	for symbol, price := range mockBasePrices {
		mp.basePrices[symbol] = price
	}
	return mp
}

func (mp *MockProvider) Name() string { return "mock" }

func (mp *MockProvider) Priority() int { return 0 }

func (mp *MockProvider) basePrice(symbol string) float64 {
	mp.mu.RLock()
	price, ok := mp.basePrices[symbol]
	mp.mu.RUnlock()
	if ok {
		return price
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()
	price = 10.0 + mp.rand.Float64()*90.0
	mp.basePrices[symbol] = price
	return price
}

// FetchTick 生成围绕基准价波动的模拟行情
func (mp *MockProvider) FetchTick(ctx context.Context, symbol string) (*Tick, error) {
	base := mp.basePrice(symbol)

	mp.mu.Lock()
	changePct := (mp.rand.Float64() - 0.5) * 0.1
	volume := int64(mp.rand.Float64() * 10000000)
	mp.mu.Unlock()

	price := base * (1 + changePct)
	change := price - base

	return &Tick{
		Symbol:    symbol,
		Name:      mockName(symbol),
		Price:     price,
		Open:      base,
		High:      math.Max(price, base),
		Low:       math.Min(price, base),
		PreClose:  base,
		Volume:    volume,
		Turnover:  price * float64(volume),
		Time:      time.Now(),
		Change:    change,
		ChangePct: change / base * 100,
	}, nil
}

// FetchKLines 生成随机游走的模拟日K线
func (mp *MockProvider) FetchKLines(ctx context.Context, symbol string, days int) ([]KLine, error) {
	current := mp.basePrice(symbol)

	klines := make([]KLine, 0, days)
	for i := days; i >= 1; i-- {
		date := time.Now().AddDate(0, 0, -i).Format("2006-01-02")

		mp.mu.Lock()
		changePct := (mp.rand.Float64() - 0.48) * 0.08
		volume := int64(mp.rand.Float64() * 10000000)
		mp.mu.Unlock()

		open := current * (1 + changePct*0.3)
		closeVal := current * (1 + changePct)
		high := math.Max(open, closeVal) * 1.01
		low := math.Min(open, closeVal) * 0.99

		klines = append(klines, KLine{
			Symbol:    symbol,
			Date:      date,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeVal,
			Volume:    volume,
			Turnover:  closeVal * float64(volume),
			ChangePct: (closeVal - open) / open * 100,
		})
		current = closeVal
	}
	return klines, nil
}

// FetchSpot 生成覆盖全部内置股票的模拟快照
func (mp *MockProvider) FetchSpot(ctx context.Context) ([]SpotRow, error) {
	mp.mu.RLock()
	symbols := make([]string, 0, len(mp.basePrices))
	for s := range mp.basePrices {
		symbols = append(symbols, s)
	}
	mp.mu.RUnlock()

	rows := make([]SpotRow, 0, len(symbols))
	for _, symbol := range symbols {
		base := mp.basePrice(symbol)

		mp.mu.Lock()
		changePct := (mp.rand.Float64() - 0.5) * 10
		change60 := (mp.rand.Float64() - 0.4) * 60
		changeYTD := (mp.rand.Float64() - 0.4) * 120
		mp.mu.Unlock()

		rows = append(rows, SpotRow{
			Code:         symbol,
			Name:         mockName(symbol),
			Price:        base,
			ChangePct:    changePct,
			TurnoverRate: 2.5,
			VolumeRatio:  1.0,
			TotalMV:      base * 1e9,
			PETTM:        20,
			Change60:     change60,
			ChangeYTD:    changeYTD,
		})
	}
	return rows, nil
}

// FetchFundFlow 生成模拟资金流向
func (mp *MockProvider) FetchFundFlow(ctx context.Context, symbol string) (*FundFlow, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return &FundFlow{
		SuperIn: (mp.rand.Float64() - 0.5) * 1e8,
		LargeIn: (mp.rand.Float64() - 0.5) * 1e8,
	}, nil
}

// FetchInfo 生成模拟个股信息
func (mp *MockProvider) FetchInfo(ctx context.Context, symbol string) (*SecurityInfo, error) {
	base := mp.basePrice(symbol)
	return &SecurityInfo{
		Code:     symbol,
		Name:     mockName(symbol),
		Industry: "模拟行业",
		TotalMV:  base * 1e9,
		PETTM:    20,
		ROE:      12.5,
	}, nil
}

func (mp *MockProvider) HealthCheck() error { return nil }

var mockBasePrices = map[string]float64{
	"600000": 7.50,
	"600519": 1800.00,
	"600036": 32.00,
	"601318": 45.00,
	"000001": 12.50,
	"000858": 150.00,
	"300750": 180.00,
	"002594": 250.00,
}

var mockNames = map[string]string{
	"600000": "浦发银行",
	"600519": "贵州茅台",
	"600036": "招商银行",
	"601318": "中国平安",
	"000001": "平安银行",
	"000858": "五粮液",
	"300750": "宁德时代",
	"002594": "比亚迪",
}

func mockName(symbol string) string {
	if name, ok := mockNames[symbol]; ok {
		return name
	}
	return "模拟股票"
}
