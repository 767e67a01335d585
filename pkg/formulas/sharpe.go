package formulas

import "math"

// CalculateSharpeRatio divides an annualized return by annualized volatility.
// A zero or non-finite volatility yields NaN: callers must handle the
// undefined case explicitly rather than receive a misleading 0.
func CalculateSharpeRatio(annualizedReturn, annualizedVolatility, riskFreeRate float64) float64 {
	if annualizedVolatility == 0 || !IsFinite(annualizedVolatility) {
		return math.NaN()
	}
	return (annualizedReturn - riskFreeRate) / annualizedVolatility
}

// RollingSharpe computes the annualized Sharpe ratio of the trailing window of
// daily returns (or all of them when fewer are available), with a zero
// risk-free rate. It also returns the annualized volatility of that window.
func RollingSharpe(dailyReturns []float64, window int) (sharpe, volatility float64) {
	if window > 0 && len(dailyReturns) > window {
		dailyReturns = dailyReturns[len(dailyReturns)-window:]
	}
	if len(dailyReturns) < 2 {
		return math.NaN(), 0
	}

	volatility = AnnualizedVolatility(dailyReturns)
	annualMean := Mean(dailyReturns) * TradingDaysPerYear
	return CalculateSharpeRatio(annualMean, volatility, 0), volatility
}
