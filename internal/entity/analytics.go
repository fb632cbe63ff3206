package entity

// CategorySpend aggregates spend attributed to one category. An invoice
// carrying several categories contributes its full total to each of them.
type CategorySpend struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// MonthlySpend aggregates spend for one calendar month keyed YYYY-MM.
type MonthlySpend struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// SpendOverview is the headline analytics read model for a tenant.
type SpendOverview struct {
	TotalSpend          float64         `json:"total_spend"`
	ActiveMonths        int             `json:"active_months"`
	AverageMonthlySpend float64         `json:"average_monthly_spend"`
	FirstMonth          string          `json:"first_month,omitempty"`
	LastMonth           string          `json:"last_month,omitempty"`
	ByCategory          []CategorySpend `json:"by_category"`
	ByMonth             []MonthlySpend  `json:"by_month"`
}
