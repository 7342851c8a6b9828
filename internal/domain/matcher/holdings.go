package matcher

import (
	"strings"

	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/similarity"
)

func (m *Matcher) scoreHolding(b *breakdown, h *records.Holding, e *records.ExternalHolding) {
	w := m.config.Holding

	if sameIdentifier(h.Ticker, e.Symbol) {
		b.add("ticker", w.Ticker, "ticker %s matches symbol", strings.ToUpper(h.Ticker))
	}
	if sameIdentifier(h.CUSIP, e.CUSIP) {
		b.add("cusip", w.CUSIP, "CUSIP %s matches", h.CUSIP)
	}
	if sameIdentifier(h.ISIN, e.ISIN) {
		b.add("isin", w.ISIN, "ISIN %s matches", h.ISIN)
	}

	if h.Name != "" && e.Name != "" {
		if s := similarity.String(h.Name, e.Name); s > w.NameGate {
			b.add("name", s*w.Name, "name similarity %.2f", s)
		}
	}

	if similarity.Categorical(h.SecurityType, e.SecurityType, m.config.Categories[records.EntityHolding]) {
		b.add("security_type", w.SecurityType, "security type %s ~ %s", h.SecurityType, e.SecurityType)
	}

	if h.Shares > 0 && e.Quantity > 0 {
		q := similarity.Tiered(h.Shares, e.Quantity, m.config.QuantityTiers, m.config.QuantityFloor)
		if q > w.QuantityGate {
			b.add("quantity", q*w.Quantity, "quantity %.4g vs %.4g (proximity %.2f)", h.Shares, e.Quantity, q)
		}
	}

	manualPrice, externalPrice, label := holdingPrices(h, e)
	if manualPrice > 0 && externalPrice > 0 {
		p := similarity.Tiered(manualPrice, externalPrice, m.config.PriceTiers, m.config.PriceFloor)
		if p > w.PriceGate {
			b.add("price", p*w.Price, "%s %.2f vs %.2f (proximity %.2f)", label, manualPrice, externalPrice, p)
		}
	}
}

// holdingPrices picks the price pair to compare: current prices when both
// sides report one, otherwise cost basis.
func holdingPrices(h *records.Holding, e *records.ExternalHolding) (float64, float64, string) {
	if h.CurrentPrice > 0 && e.Price > 0 {
		return h.CurrentPrice, e.Price, "price"
	}
	return h.CostBasis, e.CostBasis, "cost basis"
}

func sameIdentifier(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && b != "" && strings.EqualFold(a, b)
}
