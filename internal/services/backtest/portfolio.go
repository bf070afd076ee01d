package backtest

import (
	"time"

	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/models"
)

// SimPortfolio is the simulated portfolio a backtest strategy trades against.
// It owns its positions for the lifetime of the run; cost basis is a running
// average.
type SimPortfolio struct {
	positions map[string]*models.Position
	order     []string

	Invested    float64
	RealizedPnL float64
	Trades      []models.SimTrade
}

// NewSimPortfolio creates an empty simulated portfolio.
func NewSimPortfolio() *SimPortfolio {
	return &SimPortfolio{
		positions: make(map[string]*models.Position),
	}
}

// Buy adds amount worth of stock at price. Zero or negative prices are a
// no-op.
func (p *SimPortfolio) Buy(ticker string, amount, price float64, date string) {
	if price <= 0 || amount <= 0 {
		return
	}
	key := common.BaseTicker(ticker)
	quantity := amount / price

	position, exists := p.positions[key]
	if exists {
		totalQty := position.Quantity + quantity
		position.AvgBuyPrice = (position.Quantity*position.AvgBuyPrice + quantity*price) / totalQty
		position.Quantity = totalQty
	} else {
		opened, _ := time.Parse("2006-01-02", date)
		p.positions[key] = &models.Position{
			Ticker:      key,
			Quantity:    quantity,
			AvgBuyPrice: price,
			OpenedAt:    opened,
		}
		p.order = append(p.order, key)
	}

	p.Invested += amount
	p.Trades = append(p.Trades, models.SimTrade{
		Ticker:   key,
		Side:     "buy",
		Quantity: quantity,
		Price:    price,
		Date:     date,
	})
}

// Sell closes the whole position at price and realizes its PnL. Returns false
// when there is no such position or the price is unusable.
func (p *SimPortfolio) Sell(ticker string, price float64, date, reason string) (float64, bool) {
	if price <= 0 {
		return 0, false
	}
	key := common.BaseTicker(ticker)
	position, exists := p.positions[key]
	if !exists || position.Quantity <= 0 {
		return 0, false
	}

	pnl := position.Quantity * (price - position.AvgBuyPrice)
	p.RealizedPnL += pnl
	p.Trades = append(p.Trades, models.SimTrade{
		Ticker:   key,
		Side:     "sell",
		Quantity: position.Quantity,
		Price:    price,
		PnL:      pnl,
		Date:     date,
		Reason:   reason,
	})

	delete(p.positions, key)
	for i, t := range p.order {
		if t == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return pnl, true
}

// Positions returns the open positions in buy order.
func (p *SimPortfolio) Positions() []models.Position {
	positions := make([]models.Position, 0, len(p.order))
	for _, key := range p.order {
		positions = append(positions, *p.positions[key])
	}
	return positions
}

// Value prices the open positions, falling back to cost basis for tickers
// without a quote.
func (p *SimPortfolio) Value(prices map[string]float64) float64 {
	var total float64
	for _, key := range p.order {
		position := p.positions[key]
		price, ok := prices[key]
		if !ok || price <= 0 {
			price = position.AvgBuyPrice
		}
		total += position.Quantity * price
	}
	return total
}

// UnrealizedPnL is the open positions' value against their cost basis.
// Positions without a quote contribute zero.
func (p *SimPortfolio) UnrealizedPnL(prices map[string]float64) float64 {
	var total float64
	for _, key := range p.order {
		position := p.positions[key]
		price, ok := prices[key]
		if !ok || price <= 0 {
			continue
		}
		total += position.Quantity * (price - position.AvgBuyPrice)
	}
	return total
}
