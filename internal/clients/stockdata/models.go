package stockdata

// eodRow is a single day's end-of-day price row.
type eodRow struct {
	Date          string  `json:"date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        int64   `json:"volume"`
}

// quoteRow is a real-time quote.
type quoteRow struct {
	Code      string  `json:"code"`
	Close     float64 `json:"close"`
	Timestamp int64   `json:"timestamp"`
}

// fundamentalsResponse mirrors the provider's fundamentals document. Only the
// sections the digest needs are decoded.
type fundamentalsResponse struct {
	General *struct {
		Code     string `json:"Code"`
		Type     string `json:"Type"`
		Name     string `json:"Name"`
		Sector   string `json:"Sector"`
		Industry string `json:"Industry"`
	} `json:"General"`
	Highlights *struct {
		MarketCapitalization   *float64 `json:"MarketCapitalization"`
		PERatio                *float64 `json:"PERatio"`
		ProfitMargin           *float64 `json:"ProfitMargin"`
		QuarterlyRevenueGrowth *float64 `json:"QuarterlyRevenueGrowthYOY"`
	} `json:"Highlights"`
	Valuation *struct {
		ForwardPE *float64 `json:"ForwardPE"`
	} `json:"Valuation"`
	Technicals *struct {
		Beta *float64 `json:"Beta"`
	} `json:"Technicals"`
}

// newsRow is a single news article.
type newsRow struct {
	Date   string `json:"date"`
	Title  string `json:"title"`
	Link   string `json:"link"`
	Source string `json:"source,omitempty"`
}

// searchRow is one instrument match from the search endpoint.
type searchRow struct {
	Code     string `json:"Code"`
	Exchange string `json:"Exchange"`
	Name     string `json:"Name"`
	Type     string `json:"Type"`
}

// earningsCalendarResponse wraps upcoming earnings rows.
type earningsCalendarResponse struct {
	Earnings []earningsRow `json:"earnings"`
}

type earningsRow struct {
	Code        string   `json:"code"`
	ReportDate  string   `json:"report_date"`
	Date        string   `json:"date"`
	EPSEstimate *float64 `json:"estimate"`
}

// trendRow is one analyst estimate trend entry.
type trendRow struct {
	Code            string   `json:"code"`
	Date            string   `json:"date"`
	EPSTrendCurrent *float64 `json:"epsTrendCurrent"`
	EPSTrend7Days   *float64 `json:"epsTrend7daysAgo"`
	EPSTrend30Days  *float64 `json:"epsTrend30daysAgo"`
}

// trendsResponse wraps the estimate trend rows.
type trendsResponse struct {
	Trends []trendRow `json:"trends"`
}

// insiderRow is one filed insider transaction.
type insiderRow struct {
	Date            string  `json:"date"`
	TransactionDate string  `json:"transactionDate"`
	TransactionCode string  `json:"transactionCode"`
	Amount          float64 `json:"transactionAmount"`
}

// screenerResponse wraps screener result rows.
type screenerResponse struct {
	Data []screenerRow `json:"data"`
}

type screenerRow struct {
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	MarketCap          float64 `json:"market_capitalization"`
	Change1DPct float64 `json:"change_1d_p"`
}
