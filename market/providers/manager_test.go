package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingProvider 全部查询返回错误
type failingProvider struct{}

func (failingProvider) Name() string  { return "failing" }
func (failingProvider) Priority() int { return 9 }
func (failingProvider) FetchTick(ctx context.Context, symbol string) (*Tick, error) {
	return nil, errors.New("down")
}
func (failingProvider) FetchKLines(ctx context.Context, symbol string, days int) ([]KLine, error) {
	return nil, errors.New("down")
}
func (failingProvider) FetchSpot(ctx context.Context) ([]SpotRow, error) {
	return nil, errors.New("down")
}
func (failingProvider) FetchFundFlow(ctx context.Context, symbol string) (*FundFlow, error) {
	return nil, errors.New("down")
}
func (failingProvider) FetchInfo(ctx context.Context, symbol string) (*SecurityInfo, error) {
	return nil, errors.New("down")
}
func (failingProvider) HealthCheck() error { return errors.New("down") }

func TestManagerFallsBackWhenPrimaryFails(t *testing.T) {
	m := NewManager()
	m.AddProvider(NewMockProvider())
	m.AddProvider(failingProvider{})

	// failing优先级更高，自动成为主数据源
	assert.Equal(t, "failing", m.PrimaryName())

	tick, err := m.FetchTick(context.Background(), "600000")
	require.NoError(t, err)
	assert.Equal(t, "600000", tick.Symbol)
}

func TestManagerAllProvidersFailed(t *testing.T) {
	m := NewManager()
	m.AddProvider(failingProvider{})

	_, err := m.FetchSpot(context.Background())
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestManagerSkipsNotSupported(t *testing.T) {
	m := NewManager()
	m.AddProvider(NewSinaProvider(0))
	m.AddProvider(NewMockProvider())
	require.NoError(t, m.SetPrimary("sina"))

	// 新浪不支持快照，应静默切到mock
	rows, err := m.FetchSpot(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestManagerSetPrimaryUnknown(t *testing.T) {
	m := NewManager()
	m.AddProvider(NewMockProvider())
	assert.ErrorIs(t, m.SetPrimary("nope"), ErrProviderNotFound)
}

func TestMockProviderShapes(t *testing.T) {
	mp := NewMockProvider()
	ctx := context.Background()

	rows, err := mp.FetchSpot(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, len(mockBasePrices))

	klines, err := mp.FetchKLines(ctx, "600519", 30)
	require.NoError(t, err)
	assert.Len(t, klines, 30)
	for _, k := range klines {
		assert.GreaterOrEqual(t, k.High, k.Low)
	}

	ff, err := mp.FetchFundFlow(ctx, "600519")
	require.NoError(t, err)
	assert.NotNil(t, ff)

	info, err := mp.FetchInfo(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, "贵州茅台", info.Name)
}
