package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// SinaProvider 新浪行情备用数据源。仅支持实时行情与日K线，
// 全市场快照/资金流/个股信息返回ErrNotSupported。
type SinaProvider struct {
	client *http.Client
}

// NewSinaProvider 创建新浪数据源
func NewSinaProvider(timeout time.Duration) *SinaProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SinaProvider{
		client: &http.Client{Timeout: timeout},
	}
}

func (sp *SinaProvider) Name() string { return "sina" }

func (sp *SinaProvider) Priority() int { return 1 }

// FetchTick 获取实时行情。新浪返回GBK编码的逗号分隔行情串。
func (sp *SinaProvider) FetchTick(ctx context.Context, symbol string) (*Tick, error) {
	url := fmt.Sprintf("http://hq.sinajs.cn/list=%s", sinaSymbol(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", "http://finance.sina.com.cn")

	resp, err := sp.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	utf8Reader := transform.NewReader(resp.Body, simplifiedchinese.GBK.NewDecoder())
	body, err := io.ReadAll(utf8Reader)
	if err != nil {
		return nil, err
	}
	return parseSinaTick(string(body), symbol)
}

func parseSinaTick(line, symbol string) (*Tick, error) {
	parts := strings.Split(line, "\"")
	if len(parts) < 2 {
		return nil, fmt.Errorf("sina: invalid response")
	}
	data := strings.Split(parts[1], ",")
	if len(data) < 32 {
		return nil, fmt.Errorf("sina: unexpected data format")
	}

	open, _ := strconv.ParseFloat(data[1], 64)
	preClose, _ := strconv.ParseFloat(data[2], 64)
	price, _ := strconv.ParseFloat(data[3], 64)
	high, _ := strconv.ParseFloat(data[4], 64)
	low, _ := strconv.ParseFloat(data[5], 64)
	volume, _ := strconv.ParseInt(data[8], 10, 64)
	turnover, _ := strconv.ParseFloat(data[9], 64)

	timestamp, _ := time.ParseInLocation("2006-01-02 15:04:05", data[30]+" "+data[31], time.Local)

	change := price - preClose
	changePct := 0.0
	if preClose > 0 {
		changePct = change / preClose * 100
	}

	return &Tick{
		Symbol:    symbol,
		Name:      data[0],
		Price:     price,
		Open:      open,
		High:      high,
		Low:       low,
		PreClose:  preClose,
		Volume:    volume,
		Turnover:  turnover,
		Time:      timestamp,
		Change:    change,
		ChangePct: changePct,
	}, nil
}

type sinaKLine struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// FetchKLines 获取日K线。新浪接口无前复权，仅作东财不可用时的降级
func (sp *SinaProvider) FetchKLines(ctx context.Context, symbol string, days int) ([]KLine, error) {
	url := fmt.Sprintf("http://money.finance.sina.com.cn/quotes_service/api/json_v2.php/CN_MarketData.getKLineData?symbol=%s&scale=240&ma=no&datalen=%d",
		sinaSymbol(symbol), days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := sp.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sinaData []sinaKLine
	if err := json.NewDecoder(resp.Body).Decode(&sinaData); err != nil {
		return nil, fmt.Errorf("sina: decode klines: %w", err)
	}

	klines := make([]KLine, 0, len(sinaData))
	for _, d := range sinaData {
		open, _ := strconv.ParseFloat(d.Open, 64)
		high, _ := strconv.ParseFloat(d.High, 64)
		low, _ := strconv.ParseFloat(d.Low, 64)
		closeVal, _ := strconv.ParseFloat(d.Close, 64)
		volume, _ := strconv.ParseInt(d.Volume, 10, 64)

		date := d.Day
		if len(date) > 10 {
			date = date[:10]
		}

		changePct := 0.0
		if open > 0 {
			changePct = (closeVal - open) / open * 100
		}

		klines = append(klines, KLine{
			Symbol:    symbol,
			Date:      date,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeVal,
			Volume:    volume,
			ChangePct: changePct,
		})
	}
	return klines, nil
}

// FetchSpot 新浪不提供全市场快照
func (sp *SinaProvider) FetchSpot(ctx context.Context) ([]SpotRow, error) {
	return nil, ErrNotSupported
}

// FetchFundFlow 新浪不提供资金流向
func (sp *SinaProvider) FetchFundFlow(ctx context.Context, symbol string) (*FundFlow, error) {
	return nil, ErrNotSupported
}

// FetchInfo 新浪不提供个股基础信息
func (sp *SinaProvider) FetchInfo(ctx context.Context, symbol string) (*SecurityInfo, error) {
	return nil, ErrNotSupported
}

// HealthCheck 以浦发银行行情作为探活请求
func (sp *SinaProvider) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := sp.FetchTick(ctx, "600000")
	return err
}

// sinaSymbol 转为新浪代码格式：sh600519 / sz000001
func sinaSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if strings.HasPrefix(s, "sh") || strings.HasPrefix(s, "sz") {
		return s
	}
	if s == "" {
		return s
	}
	switch s[0] {
	case '6', '5', '9':
		return "sh" + s
	default:
		return "sz" + s
	}
}
