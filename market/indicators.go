// Package market 提供快照缓存、重试策略与技术指标计算
package market

import "math"

// CalculateMA 计算简单移动平均
func CalculateMA(closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

// CalculateRSI 计算相对强弱指标
func CalculateRSI(closes []float64, period int) float64 {
	if len(closes) <= period || period <= 0 {
		return 0
	}

	gains := 0.0
	losses := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		if diff >= 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// CalculateMACD 计算MACD最新值 (DIF, DEA, Hist)。
// EMA按递推定义在整个序列上计算，首值作为种子，因此结果依赖传入的
// 历史长度；调用方应提供至少约100个交易日的收盘价以保证数值收敛。
// 空序列返回全零。结果保留3位小数。
func CalculateMACD(closes []float64) (dif, dea, hist float64) {
	if len(closes) == 0 {
		return 0, 0, 0
	}

	ema12 := calculateEMA(closes, 12)
	ema26 := calculateEMA(closes, 26)

	difSeries := make([]float64, len(closes))
	for i := range closes {
		difSeries[i] = ema12[i] - ema26[i]
	}
	deaSeries := calculateEMA(difSeries, 9)

	last := len(closes) - 1
	dif = round3(difSeries[last])
	dea = round3(deaSeries[last])
	hist = round3((difSeries[last] - deaSeries[last]) * 2)
	return dif, dea, hist
}

// calculateEMA 递推EMA：ema[t] = ema[t-1] + α·(x[t]-ema[t-1])，α=2/(span+1)
func calculateEMA(data []float64, span int) []float64 {
	ema := make([]float64, len(data))
	if len(data) == 0 {
		return ema
	}

	alpha := 2.0 / float64(span+1)
	ema[0] = data[0]
	for i := 1; i < len(data); i++ {
		ema[i] = ema[i-1] + alpha*(data[i]-ema[i-1])
	}
	return ema
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
