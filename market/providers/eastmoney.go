package providers

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// 东方财富接口地址
const (
	eastmoneyListURL     = "https://82.push2.eastmoney.com/api/qt/clist/get"
	eastmoneyQuoteURL    = "https://push2.eastmoney.com/api/qt/stock/get"
	eastmoneyKLineURL    = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
	eastmoneyFundFlowURL = "https://push2.eastmoney.com/api/qt/stock/fflow/kline/get"
)

// 快照接口请求字段：f12 代码 f14 名称 f2 现价 f3 涨跌幅 f8 换手率 f10 量比
// f20 总市值 f115 市盈率TTM f24 60日涨跌幅 f25 年初至今涨跌幅
const spotFields = "f2,f3,f8,f10,f12,f14,f20,f24,f25,f115"

// 全A股：沪深主板、创业板、科创板
const spotMarkets = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23"

const spotPageSize = 500

// 请求头（模拟浏览器）
const (
	emUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	emReferer   = "https://quote.eastmoney.com/"
)

// EastmoneyProvider 东方财富数据源
type EastmoneyProvider struct {
	client *http.Client
}

// NewEastmoneyProvider 创建东方财富数据源，timeout为单次请求超时
func NewEastmoneyProvider(timeout time.Duration) *EastmoneyProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EastmoneyProvider{
		client: &http.Client{Timeout: timeout},
	}
}

func (ep *EastmoneyProvider) Name() string { return "eastmoney" }

func (ep *EastmoneyProvider) Priority() int { return 2 }

func (ep *EastmoneyProvider) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", emUserAgent)
	req.Header.Set("Referer", emReferer)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := ep.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eastmoney: http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FetchSpot 分页拉取全市场A股实时快照
func (ep *EastmoneyProvider) FetchSpot(ctx context.Context) ([]SpotRow, error) {
	var all []SpotRow
	page := 1
	for {
		url := fmt.Sprintf("%s?pn=%d&pz=%d&po=1&fltt=2&invt=2&fs=%s&fields=%s",
			eastmoneyListURL, page, spotPageSize, spotMarkets, spotFields)
		body, err := ep.get(ctx, url)
		if err != nil {
			return nil, err
		}
		total, rows, err := parseSpotPage(body)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) == 0 || len(all) >= total || len(rows) < spotPageSize {
			break
		}
		page++
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("eastmoney: empty spot snapshot")
	}
	return all, nil
}

// parseSpotPage 解析快照分页响应。data.diff可能为数组或"0","1"...键的对象。
func parseSpotPage(body []byte) (total int, rows []SpotRow, err error) {
	root := gjson.GetBytes(body, "data")
	if !root.Exists() {
		return 0, nil, fmt.Errorf("eastmoney: no data in spot response")
	}
	total = int(root.Get("total").Int())

	diff := root.Get("diff")
	if !diff.Exists() {
		return total, nil, nil
	}
	diff.ForEach(func(_, v gjson.Result) bool {
		code := v.Get("f12").String()
		if code == "" {
			return true
		}
		rows = append(rows, SpotRow{
			Code:         code,
			Name:         v.Get("f14").String(),
			Price:        optFloat(v, "f2"),
			ChangePct:    optFloat(v, "f3"),
			TurnoverRate: optFloat(v, "f8"),
			VolumeRatio:  optFloat(v, "f10"),
			TotalMV:      optFloat(v, "f20"),
			PETTM:        optFloat(v, "f115"),
			Change60:     optFloatNaN(v, "f24"),
			ChangeYTD:    optFloatNaN(v, "f25"),
		})
		return true
	})
	return total, rows, nil
}

// FetchTick 获取单只股票实时行情
func (ep *EastmoneyProvider) FetchTick(ctx context.Context, symbol string) (*Tick, error) {
	url := fmt.Sprintf("%s?secid=%s&fltt=2&invt=2&fields=f43,f44,f45,f46,f47,f48,f57,f58,f60",
		eastmoneyQuoteURL, eastmoneySecID(symbol))
	body, err := ep.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseTick(body, symbol)
}

func parseTick(body []byte, symbol string) (*Tick, error) {
	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, ErrSymbolNotFound
	}
	if !data.Get("f43").Exists() {
		return nil, fmt.Errorf("eastmoney: no price for %s", symbol)
	}

	price := optFloat(data, "f43")
	preClose := optFloat(data, "f60")
	change := price - preClose
	changePct := 0.0
	if preClose > 0 {
		changePct = change / preClose * 100
	}

	return &Tick{
		Symbol:    symbol,
		Name:      data.Get("f58").String(),
		Price:     price,
		High:      optFloat(data, "f44"),
		Low:       optFloat(data, "f45"),
		Open:      optFloat(data, "f46"),
		Volume:    data.Get("f47").Int(),
		Turnover:  optFloat(data, "f48"),
		PreClose:  preClose,
		Time:      time.Now(),
		Change:    change,
		ChangePct: changePct,
	}, nil
}

// FetchKLines 拉取前复权日K线，days为最近条数
func (ep *EastmoneyProvider) FetchKLines(ctx context.Context, symbol string, days int) ([]KLine, error) {
	if days <= 0 {
		return nil, fmt.Errorf("eastmoney: invalid kline count %d", days)
	}
	if days > 1000 {
		days = 1000
	}
	url := fmt.Sprintf("%s?secid=%s&fields1=f1,f2,f3,f4,f5,f6&fields2=f51,f52,f53,f54,f55,f56,f57&klt=101&fqt=1&end=20500101&lmt=%d",
		eastmoneyKLineURL, eastmoneySecID(symbol), days)
	body, err := ep.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseKLines(body, symbol)
}

// parseKLines 解析K线：每条为"date,open,close,high,low,volume,amount"
func parseKLines(body []byte, symbol string) ([]KLine, error) {
	klines := gjson.GetBytes(body, "data.klines")
	if !klines.Exists() || !klines.IsArray() {
		return nil, fmt.Errorf("eastmoney: no klines for %s", symbol)
	}

	arr := klines.Array()
	out := make([]KLine, 0, len(arr))
	for _, v := range arr {
		parts := strings.Split(v.String(), ",")
		if len(parts) < 6 {
			continue
		}
		open, _ := strconv.ParseFloat(parts[1], 64)
		closeVal, _ := strconv.ParseFloat(parts[2], 64)
		high, _ := strconv.ParseFloat(parts[3], 64)
		low, _ := strconv.ParseFloat(parts[4], 64)
		volume, _ := strconv.ParseInt(parts[5], 10, 64)
		var turnover float64
		if len(parts) >= 7 {
			turnover, _ = strconv.ParseFloat(parts[6], 64)
		}

		changePct := 0.0
		if open > 0 {
			changePct = (closeVal - open) / open * 100
		}

		out = append(out, KLine{
			Symbol:    symbol,
			Date:      parts[0],
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeVal,
			Volume:    volume,
			Turnover:  turnover,
			ChangePct: changePct,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("eastmoney: empty klines for %s", symbol)
	}
	return out, nil
}

// FetchFundFlow 获取最近交易日的大单资金流向
func (ep *EastmoneyProvider) FetchFundFlow(ctx context.Context, symbol string) (*FundFlow, error) {
	url := fmt.Sprintf("%s?secid=%s&klt=101&lmt=0&fields1=f1,f2,f3,f7&fields2=f51,f52,f53,f54,f55,f56",
		eastmoneyFundFlowURL, eastmoneySecID(symbol))
	body, err := ep.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseFundFlow(body, symbol)
}

// parseFundFlow 资金流K线每条为"date,主力,小单,中单,大单,超大单"，取最后一条
func parseFundFlow(body []byte, symbol string) (*FundFlow, error) {
	klines := gjson.GetBytes(body, "data.klines")
	if !klines.Exists() || !klines.IsArray() {
		return nil, fmt.Errorf("eastmoney: no fund flow for %s", symbol)
	}
	arr := klines.Array()
	if len(arr) == 0 {
		return nil, fmt.Errorf("eastmoney: empty fund flow for %s", symbol)
	}

	parts := strings.Split(arr[len(arr)-1].String(), ",")
	if len(parts) < 6 {
		return nil, fmt.Errorf("eastmoney: malformed fund flow row for %s", symbol)
	}
	large, _ := strconv.ParseFloat(parts[4], 64)
	super, _ := strconv.ParseFloat(parts[5], 64)
	return &FundFlow{SuperIn: super, LargeIn: large}, nil
}

// FetchInfo 获取个股基础信息。行业、ROE等字段依赖上游schema，缺失时为零值。
func (ep *EastmoneyProvider) FetchInfo(ctx context.Context, symbol string) (*SecurityInfo, error) {
	url := fmt.Sprintf("%s?secid=%s&fltt=2&invt=2&fields=f57,f58,f116,f127,f164,f173",
		eastmoneyQuoteURL, eastmoneySecID(symbol))
	body, err := ep.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseInfo(body, symbol)
}

func parseInfo(body []byte, symbol string) (*SecurityInfo, error) {
	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, ErrSymbolNotFound
	}
	code := data.Get("f57").String()
	if code == "" {
		code = normalizeCode(symbol)
	}
	return &SecurityInfo{
		Code:     code,
		Name:     data.Get("f58").String(),
		Industry: data.Get("f127").String(),
		TotalMV:  optFloat(data, "f116"),
		PETTM:    optFloat(data, "f164"),
		ROE:      optFloat(data, "f173"),
	}, nil
}

// HealthCheck 以浦发银行行情作为探活请求
func (ep *EastmoneyProvider) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := ep.FetchTick(ctx, "600000")
	return err
}

// eastmoneySecID 转为东方财富secid：沪市1.600519，深市0.000001
func eastmoneySecID(symbol string) string {
	code := normalizeCode(symbol)
	if code == "" {
		return "1.600000"
	}
	switch code[0] {
	case '6', '5', '9':
		return "1." + code
	default:
		return "0." + code
	}
}

// normalizeCode 去除sh/sz前缀，返回6位数字代码
func normalizeCode(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	s = strings.TrimPrefix(s, "sh")
	s = strings.TrimPrefix(s, "sz")
	return s
}

// optFloat 读取可能缺失的数值字段，缺失或为"-"时返回0
func optFloat(v gjson.Result, key string) float64 {
	f := v.Get(key)
	if !f.Exists() || f.Type == gjson.Null || f.String() == "-" {
		return 0
	}
	return f.Float()
}

// optFloatNaN 同optFloat，但缺失时返回NaN以便排序时剔除
func optFloatNaN(v gjson.Result, key string) float64 {
	f := v.Get(key)
	if !f.Exists() || f.Type == gjson.Null || f.String() == "-" {
		return math.NaN()
	}
	return f.Float()
}
