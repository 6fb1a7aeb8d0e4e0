package http

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"stockengine/market"
	"stockengine/market/providers"
)

// 深度指标计算所需的最少K线数；EMA需要前置数据平滑
const macdHistoryBars = 120

// 个股详情接口返回的最大K线数
const bundleHistoryBars = 250

// MarketData 处理器依赖的行情查询能力
type MarketData interface {
	FetchKLines(ctx context.Context, symbol string, days int) ([]providers.KLine, error)
	FetchFundFlow(ctx context.Context, symbol string) (*providers.FundFlow, error)
}

// Handlers API处理器集合
type Handlers struct {
	Cache *market.SnapshotCache
	Data  MarketData
	Info  *market.InfoCache
	Retry market.RetryPolicy
}

// Register 注册所有API路由
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/market/stats", h.handleMarketStats)
	mux.HandleFunc("GET /api/stock/price", h.handleStockPrice)
	mux.HandleFunc("GET /api/rps/top/{period}", h.handleRPSTop)
	mux.HandleFunc("GET /api/stock/{code}", h.handleStockBundle)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleMarketStats 存活检查与缓存状态
func (h *Handlers) handleMarketStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"message": "行情数据引擎已上线",
		"cache":   h.Cache.Stats(),
	})
}

// handleStockPrice 个股深度行情。detail=true时附加MACD与大单资金流向，
// 任一子查询失败降级为零值，不影响主响应。
func (h *Handlers) handleStockPrice(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	detail, _ := strconv.ParseBool(r.URL.Query().Get("detail"))

	resp := map[string]interface{}{"code": code}
	if detail {
		dif, dea, hist := h.macdOrZero(r.Context(), code)
		resp["macd_dif"] = dif
		resp["macd_dea"] = dea
		resp["macd_hist"] = hist

		superIn, largeIn := h.fundFlowOrZero(r.Context(), code)
		resp["super_in"] = superIn
		resp["large_in"] = largeIn
	}

	writeJSON(w, http.StatusOK, resp)
}

// macdOrZero 基于最近K线计算MACD，失败时记录并返回零值
func (h *Handlers) macdOrZero(ctx context.Context, code string) (dif, dea, hist float64) {
	klines, err := h.Data.FetchKLines(ctx, code, macdHistoryBars)
	if err != nil {
		zap.L().Warn("macd history fetch failed, defaulting to zero",
			zap.String("code", code), zap.Error(err))
		return 0, 0, 0
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	return market.CalculateMACD(closes)
}

// fundFlowOrZero 查询资金流向，失败时记录并返回零值
func (h *Handlers) fundFlowOrZero(ctx context.Context, code string) (superIn, largeIn float64) {
	ff, err := h.Data.FetchFundFlow(ctx, code)
	if err != nil {
		zap.L().Warn("fund flow fetch failed, defaulting to zero",
			zap.String("code", code), zap.Error(err))
		return 0, 0
	}
	return ff.SuperIn, ff.LargeIn
}

// handleRPSTop RPS涨幅榜。基于全市场快照的60日/年初至今涨幅近似50/120/250日RPS。
func (h *Handlers) handleRPSTop(w http.ResponseWriter, r *http.Request) {
	period, err := strconv.Atoi(r.PathValue("period"))
	if err != nil || period <= 0 {
		writeError(w, http.StatusBadRequest, "invalid period")
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	rows, err := h.Cache.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "数据源获取失败")
		return
	}

	top := market.TopByChange(rows, period, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period":     period,
		"count":      len(top),
		"top_stocks": top,
	})
}

type snapshotLookup struct {
	row providers.SpotRow
	ok  bool
}

// handleStockBundle 个股详情：基础信息+250日历史+实时行情。
// 快照查询与历史拉取均套用重试策略；代码不存在返回404。
func (h *Handlers) handleStockBundle(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	ctx := r.Context()

	res, err := market.RetryValue(ctx, h.Retry, "realtime snapshot lookup", func() (snapshotLookup, error) {
		row, ok, err := h.Cache.Lookup(ctx, code)
		if err != nil {
			return snapshotLookup{}, err
		}
		return snapshotLookup{row: row, ok: ok}, nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !res.ok {
		writeError(w, http.StatusNotFound, "stock not found: "+code)
		return
	}
	row := res.row

	history, err := market.RetryValue(ctx, h.Retry, "history fetch", func() ([]providers.KLine, error) {
		return h.Data.FetchKLines(ctx, code, bundleHistoryBars)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// 基础信息为附属特性：失败时退回快照行内的字段
	info, err := h.Info.Get(ctx, code)
	if err != nil {
		zap.L().Warn("security info fetch failed, using snapshot fields",
			zap.String("code", code), zap.Error(err))
		info = providers.SecurityInfo{
			Code:    row.Code,
			Name:    row.Name,
			TotalMV: row.TotalMV,
			PETTM:   row.PETTM,
		}
	}
	if info.TotalMV == 0 {
		info.TotalMV = row.TotalMV
	}
	if info.PETTM == 0 {
		info.PETTM = row.PETTM
	}

	closes := make([]float64, len(history))
	for i, k := range history {
		closes[i] = k.Close
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"info": map[string]interface{}{
			"code":     row.Code,
			"name":     row.Name,
			"industry": info.Industry,
			"total_mv": round2(info.TotalMV / 1e8),
			"pe_ttm":   info.PETTM,
			"roe":      info.ROE,
		},
		"history": history,
		"realtime": map[string]interface{}{
			"current_price": row.Price,
			"volume_ratio":  row.VolumeRatio,
			"turnover_rate": row.TurnoverRate,
			"pct_change":    row.ChangePct,
			"ma5":           round2(market.CalculateMA(closes, 5)),
			"ma20":          round2(market.CalculateMA(closes, 20)),
			"rsi_14":        round2(market.CalculateRSI(closes, 14)),
		},
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
