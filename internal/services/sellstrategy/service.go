// Package sellstrategy evaluates open positions against the exit rules.
// Rule priority is stop loss, then take profit, then hold period; the first
// match wins and a position produces at most one signal.
package sellstrategy

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/models"
)

// Service implements SellEvaluator.
type Service struct {
	config common.SellConfig
	logger arbor.ILogger
}

// NewService creates a sell evaluator with the configured thresholds.
func NewService(config common.SellConfig, logger arbor.ILogger) interfaces.SellEvaluator {
	return &Service{
		config: config,
		logger: logger,
	}
}

// Evaluate checks every position against the rules. Positions without a
// usable price or quantity are skipped.
func (s *Service) Evaluate(positions []models.Position, prices map[string]float64, now time.Time) []models.SellSignal {
	var signals []models.SellSignal
	for _, position := range positions {
		if position.Quantity <= 0 {
			continue
		}
		price, ok := prices[common.BaseTicker(position.Ticker)]
		if !ok || price <= 0 {
			s.logger.Debug().
				Str("ticker", position.Ticker).
				Msg("No usable price for position, skipping sell check")
			continue
		}

		if signal := s.evaluateOne(position, price, now); signal != nil {
			signals = append(signals, *signal)
		}
	}
	return signals
}

func (s *Service) evaluateOne(position models.Position, price float64, now time.Time) *models.SellSignal {
	returnPct := position.ReturnPct(price)

	if s.config.StopLossPct > 0 && returnPct <= -s.config.StopLossPct {
		return &models.SellSignal{
			Ticker:       position.Ticker,
			Type:         models.SellStopLoss,
			TriggerPrice: price,
			ReturnPct:    returnPct,
			Reasoning:    fmt.Sprintf("down %.1f%%, stop loss threshold is %.1f%%", -returnPct, s.config.StopLossPct),
		}
	}

	if s.config.TakeProfitPct > 0 && returnPct >= s.config.TakeProfitPct {
		return &models.SellSignal{
			Ticker:       position.Ticker,
			Type:         models.SellTakeProfit,
			TriggerPrice: price,
			ReturnPct:    returnPct,
			Reasoning:    fmt.Sprintf("up %.1f%%, take profit threshold is %.1f%%", returnPct, s.config.TakeProfitPct),
		}
	}

	if s.config.MaxHoldDays > 0 && !position.OpenedAt.IsZero() {
		heldDays := int(now.Sub(position.OpenedAt).Hours() / 24)
		if heldDays >= s.config.MaxHoldDays {
			return &models.SellSignal{
				Ticker:       position.Ticker,
				Type:         models.SellHoldPeriod,
				TriggerPrice: price,
				ReturnPct:    returnPct,
				Reasoning:    fmt.Sprintf("held %d days, maximum is %d", heldDays, s.config.MaxHoldDays),
			}
		}
	}

	return nil
}
