package matcher

import (
	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/similarity"
)

// DefaultCategoryTables maps the categories users pick in manual entry onto
// the aggregator's taxonomy. A manual category missing from the table never
// matches.
func DefaultCategoryTables() map[records.EntityType]similarity.CategoryTable {
	return map[records.EntityType]similarity.CategoryTable{
		records.EntityHolding: {
			"stock":       {"equity", "stock", "common stock"},
			"etf":         {"etf", "exchange traded fund"},
			"mutual_fund": {"mutual fund", "fund"},
			"bond":        {"bond", "fixed income"},
			"reit":        {"reit", "real estate investment trust", "equity"},
			"crypto":      {"cryptocurrency", "crypto"},
			"cash":        {"cash", "money market"},
			"option":      {"option", "derivative"},
		},
		records.EntityIncome: {
			"dividend": {"dividends", "dividend", "investment income"},
			"interest": {"interest income", "interest"},
			"salary":   {"paychecks/salary", "paychecks", "salary", "payroll"},
			"rental":   {"rental income"},
			"refund":   {"refunds/adjustments", "refund"},
			"other":    {"other income", "deposits"},
		},
		records.EntityExpense: {
			"groceries":      {"groceries", "supermarkets"},
			"dining":         {"restaurants", "dining", "food and drink"},
			"transportation": {"gasoline/fuel", "automotive expenses", "transportation", "travel"},
			"utilities":      {"utilities", "telephone services", "cable/satellite services"},
			"housing":        {"mortgages", "rent", "home improvement"},
			"entertainment":  {"entertainment", "subscriptions"},
			"healthcare":     {"healthcare/medical", "pharmacy"},
			"shopping":       {"general merchandise", "clothing/shoes", "online services", "electronics"},
			"insurance":      {"insurance"},
			"education":      {"education"},
		},
	}
}
