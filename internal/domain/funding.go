package domain

import "slices"

// DegradedCode is the snapshot code the poller stores when the upstream feed
// could not be fetched or had an unexpected shape.
const (
	DegradedCode    = "1"
	DegradedMessage = "failed to fetch funding data"
)

// Snapshot is the full upstream funding payload at one point in time.
// A stored snapshot is never mutated; it is replaced whole.
type Snapshot struct {
	Code    string  `json:"code"`
	Message string  `json:"msg"`
	Entries []Entry `json:"data"`
}

// Entry is one tradable symbol's funding data.
// List A holds USDT-margined quotes, list B coin-margined quotes.
type Entry struct {
	Symbol      string          `json:"symbol"`
	MarginListA []ExchangeQuote `json:"uMarginList,omitempty"`
	MarginListB []ExchangeQuote `json:"cMarginList,omitempty"`
	IndexPriceA *float64        `json:"uIndexPrice,omitempty"`
	PriceA      *float64        `json:"uPrice,omitempty"`
	IndexPriceB *float64        `json:"cIndexPrice,omitempty"`
	PriceB      *float64        `json:"cPrice,omitempty"`

	// Extra carries upstream fields not modelled here, such as logos.
	Extra Extra `json:"-"`
}

// ExchangeQuote is one exchange's funding rate data for a symbol.
type ExchangeQuote struct {
	ExchangeName         string   `json:"exchangeName"`
	Rate                 *float64 `json:"rate"`
	PredictedRate        *float64 `json:"predictedRate"`
	Status               *int     `json:"status"`
	NextFundingTime      *int64   `json:"nextFundingTime"`
	FundingIntervalHours *float64 `json:"fundingIntervalHours"`

	Extra Extra `json:"-"`
}

// Changeset describes what changed between two snapshots. Its entries carry
// only the quotes that are new or changed; lists without inclusions are omitted.
type Changeset struct {
	Code    string  `json:"code"`
	Message string  `json:"msg"`
	Entries []Entry `json:"data"`
}

// FeedStatus is sent to subscribers when the feed moves into or out of the
// degraded state.
type FeedStatus struct {
	Code     string `json:"code"`
	Message  string `json:"msg"`
	Degraded bool   `json:"degraded"`
}

// NewDegradedSnapshot returns the sentinel stored when a poll fails.
func NewDegradedSnapshot() *Snapshot {
	return &Snapshot{Code: DegradedCode, Message: DegradedMessage, Entries: []Entry{}}
}

// Degraded reports whether s is the failure sentinel.
func (s *Snapshot) Degraded() bool {
	return s != nil && s.Code == DegradedCode
}

// Status returns the feed status of s.
func (s *Snapshot) Status() FeedStatus {
	return FeedStatus{Code: s.Code, Message: s.Message, Degraded: s.Degraded()}
}

// AsChangeset reinterprets the whole snapshot as a changeset where everything is new.
func (s *Snapshot) AsChangeset() *Changeset {
	return &Changeset{Code: s.Code, Message: s.Message, Entries: slices.Clone(s.Entries)}
}

// Empty reports whether the changeset carries no entries.
func (c *Changeset) Empty() bool {
	return c == nil || len(c.Entries) == 0
}
