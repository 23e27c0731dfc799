package diff

import (
	"log/slog"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

// FieldDiffer emits entries that are new or have at least one changed quote or price.
type FieldDiffer struct{}

func NewFieldDiffer() *FieldDiffer {
	return &FieldDiffer{}
}

// Diff returns nil when new carries no differences from old.
// With no previous snapshot, every well-formed entry in new is reported.
// Entries without a symbol and quotes without an exchange name are skipped on every path.
func (d *FieldDiffer) Diff(old, new *domain.Snapshot) *domain.Changeset {
	if new == nil {
		return nil
	}

	var previous map[string]domain.Entry
	if old != nil {
		previous = indexEntries(old.Entries)
	}
	changed := make([]domain.Entry, 0)

	for _, entry := range new.Entries {
		if entry.Symbol == "" {
			slog.Warn("Skipping entry without symbol")
			metrics.DiffSkippedTotal.WithLabelValues("entry").Inc()
			continue
		}

		prev, ok := previous[entry.Symbol]
		if !ok {
			changed = append(changed, newEntry(entry))
			continue
		}

		if ce, ok := diffEntry(prev, entry); ok {
			changed = append(changed, ce)
		}
	}

	if len(changed) == 0 {
		return nil
	}
	return &domain.Changeset{Code: new.Code, Message: new.Message, Entries: changed}
}

// newEntry reports a symbol absent from the previous snapshot with all of its
// well-formed quotes.
func newEntry(cur domain.Entry) domain.Entry {
	out := cur
	out.MarginListA = diffQuotes(cur.Symbol, nil, cur.MarginListA)
	out.MarginListB = diffQuotes(cur.Symbol, nil, cur.MarginListB)
	return out
}

// diffEntry returns the changed view of cur relative to prev and whether anything changed.
func diffEntry(prev, cur domain.Entry) (domain.Entry, bool) {
	listA := diffQuotes(cur.Symbol, prev.MarginListA, cur.MarginListA)
	listB := diffQuotes(cur.Symbol, prev.MarginListB, cur.MarginListB)
	priceChanged := !equalPtr(prev.IndexPriceA, cur.IndexPriceA) ||
		!equalPtr(prev.PriceA, cur.PriceA) ||
		!equalPtr(prev.IndexPriceB, cur.IndexPriceB) ||
		!equalPtr(prev.PriceB, cur.PriceB)

	if len(listA) == 0 && len(listB) == 0 && !priceChanged {
		return domain.Entry{}, false
	}

	out := cur
	out.MarginListA = nil
	out.MarginListB = nil
	if len(listA) > 0 {
		out.MarginListA = listA
	}
	if len(listB) > 0 {
		out.MarginListB = listB
	}
	return out, true
}

func diffQuotes(symbol string, prev, cur []domain.ExchangeQuote) []domain.ExchangeQuote {
	if len(cur) == 0 {
		return nil
	}

	previous := indexQuotes(prev)
	var included []domain.ExchangeQuote
	for _, q := range cur {
		if q.ExchangeName == "" {
			slog.Warn("Skipping quote without exchange name", "symbol", symbol)
			metrics.DiffSkippedTotal.WithLabelValues("quote").Inc()
			continue
		}
		p, ok := previous[q.ExchangeName]
		if !ok || !quoteEqual(p, q) {
			included = append(included, q)
		}
	}
	return included
}

func indexEntries(entries []domain.Entry) map[string]domain.Entry {
	idx := make(map[string]domain.Entry, len(entries))
	for _, e := range entries {
		if e.Symbol == "" {
			continue
		}
		if _, dup := idx[e.Symbol]; dup {
			slog.Warn("Duplicate symbol in snapshot, last occurrence wins", "symbol", e.Symbol)
		}
		idx[e.Symbol] = e
	}
	return idx
}

func indexQuotes(quotes []domain.ExchangeQuote) map[string]domain.ExchangeQuote {
	idx := make(map[string]domain.ExchangeQuote, len(quotes))
	for _, q := range quotes {
		if q.ExchangeName == "" {
			continue
		}
		idx[q.ExchangeName] = q
	}
	return idx
}

// quoteEqual compares the five tracked quote fields by strict value equality.
func quoteEqual(a, b domain.ExchangeQuote) bool {
	return equalPtr(a.Rate, b.Rate) &&
		equalPtr(a.PredictedRate, b.PredictedRate) &&
		equalPtr(a.Status, b.Status) &&
		equalPtr(a.NextFundingTime, b.NextFundingTime) &&
		equalPtr(a.FundingIntervalHours, b.FundingIntervalHours)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
