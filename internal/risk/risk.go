// Package risk estimates value at risk and expected shortfall for an account
// position, following Hull's parametric and historical-simulation methods.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fidus-platform/fidus/internal/domain"
)

// ErrInsufficientData is returned when there are no returns to simulate from.
var ErrInsufficientData = errors.New("not enough return observations")

// Method names the estimation technique.
type Method string

const (
	MethodParametric Method = "parametric"
	MethodHistorical Method = "historical"
)

// Estimate is a loss estimate. VaR and ExpectedShortfall are positive loss amounts.
type Estimate struct {
	Method            Method          `json:"method"`
	PositionValue     decimal.Decimal `json:"positionValue"`
	Confidence        float64         `json:"confidence"`
	HorizonDays       int             `json:"horizonDays"`
	VaR               decimal.Decimal `json:"var"`
	ExpectedShortfall decimal.Decimal `json:"expectedShortfall"`
}

func validate(confidence float64, horizonDays int) error {
	if math.IsNaN(confidence) || confidence <= 0 || confidence >= 1 {
		return fmt.Errorf("confidence %v must be in (0, 1)", confidence)
	}
	if horizonDays < 1 {
		return fmt.Errorf("horizon %d must be at least one day", horizonDays)
	}
	return nil
}

// Parametric assumes normally distributed daily returns with zero mean:
// VaR = V·σ·√T·N⁻¹(c) and ES = V·σ·√T·φ(N⁻¹(c))/(1−c).
func Parametric(value decimal.Decimal, dailyVol, confidence float64, horizonDays int) (Estimate, error) {
	if err := validate(confidence, horizonDays); err != nil {
		return Estimate{}, err
	}
	if dailyVol < 0 || math.IsNaN(dailyVol) || math.IsInf(dailyVol, 0) {
		return Estimate{}, fmt.Errorf("daily volatility %v must be a non-negative number", dailyVol)
	}

	z := distuv.UnitNormal.Quantile(confidence)
	scale := dailyVol * math.Sqrt(float64(horizonDays))
	varFactor := scale * z
	esFactor := scale * distuv.UnitNormal.Prob(z) / (1 - confidence)

	return Estimate{
		Method:            MethodParametric,
		PositionValue:     value,
		Confidence:        confidence,
		HorizonDays:       horizonDays,
		VaR:               domain.RoundMoney(value.Mul(decimal.NewFromFloat(varFactor))),
		ExpectedShortfall: domain.RoundMoney(value.Mul(decimal.NewFromFloat(esFactor))),
	}, nil
}

// Historical takes the loss at the (1−c) tail of the observed one-day returns as
// VaR and the mean of that tail as expected shortfall.
func Historical(value decimal.Decimal, returns []float64, confidence float64) (Estimate, error) {
	if err := validate(confidence, 1); err != nil {
		return Estimate{}, err
	}
	if len(returns) == 0 {
		return Estimate{}, ErrInsufficientData
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailCount := int(math.Ceil(float64(len(sorted)) * (1 - confidence)))
	tailCount = max(1, min(tailCount, len(sorted)))
	tail := sorted[:tailCount]

	sum := 0.0
	for _, r := range tail {
		sum += r
	}

	return Estimate{
		Method:            MethodHistorical,
		PositionValue:     value,
		Confidence:        confidence,
		HorizonDays:       1,
		VaR:               loss(value, tail[len(tail)-1]),
		ExpectedShortfall: loss(value, sum/float64(len(tail))),
	}, nil
}

// loss turns a return into a positive loss amount; gains count as no loss.
func loss(value decimal.Decimal, ret float64) decimal.Decimal {
	if ret >= 0 {
		return decimal.Zero
	}
	return domain.RoundMoney(value.Mul(decimal.NewFromFloat(-ret)))
}

// Returns converts a daily P&L series into returns on the capital at the start of
// each day. Days whose starting capital is not positive are skipped.
func Returns(base decimal.Decimal, daily []decimal.Decimal) []float64 {
	out := make([]float64, 0, len(daily))
	capital := base
	for _, pnl := range daily {
		if capital.IsPositive() {
			out = append(out, pnl.Div(capital).InexactFloat64())
		}
		capital = capital.Add(pnl)
	}
	return out
}

// Volatility is the sample standard deviation of the returns, or zero for fewer than two.
func Volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil)
}
