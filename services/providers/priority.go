package providers

import "github.com/upb/market-gateway/models"

// Static preference of each vendor per operation. Lower is preferred.
var (
	SearchPriorities = models.PriorityTable{
		models.ProviderFinnhub:      1,
		models.ProviderFMP:          2,
		models.ProviderTwelveData:   3,
		models.ProviderAlphaVantage: 4,
		models.ProviderPolygon:      5,
	}

	NewsPriorities = models.PriorityTable{
		models.ProviderMarketaux:    1,
		models.ProviderFinnhub:      2,
		models.ProviderPolygon:      3,
		models.ProviderTiingo:       4,
		models.ProviderAlphaVantage: 5,
		models.ProviderFMP:          6,
	}

	InfoPriorities = models.PriorityTable{
		models.ProviderFMP:          1,
		models.ProviderTwelveData:   2,
		models.ProviderFinnhub:      3,
		models.ProviderAlphaVantage: 4,
		models.ProviderPolygon:      5,
	}
)

// Priorities returns the table of an operation
func Priorities(operation models.Operation) models.PriorityTable {
	switch operation {
	case models.OperationSearch:
		return SearchPriorities
	case models.OperationNews:
		return NewsPriorities
	case models.OperationInfo:
		return InfoPriorities
	}
	return models.PriorityTable{}
}
