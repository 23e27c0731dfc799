package domain

import "encoding/json"

// Extra holds upstream JSON fields the service does not interpret. They are
// never compared by the differ and are forwarded to clients unchanged.
type Extra map[string]json.RawMessage

var (
	entryFields = []string{"symbol", "uMarginList", "cMarginList", "uIndexPrice", "uPrice", "cIndexPrice", "cPrice"}
	quoteFields = []string{"exchangeName", "rate", "predictedRate", "status", "nextFundingTime", "fundingIntervalHours"}
)

func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, entryFields)
	if err != nil {
		return err
	}
	p.Extra = extra
	*e = Entry(p)
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	return marshalWithExtra(plain(e), e.Extra)
}

func (q *ExchangeQuote) UnmarshalJSON(data []byte) error {
	type plain ExchangeQuote
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, quoteFields)
	if err != nil {
		return err
	}
	p.Extra = extra
	*q = ExchangeQuote(p)
	return nil
}

func (q ExchangeQuote) MarshalJSON() ([]byte, error) {
	type plain ExchangeQuote
	return marshalWithExtra(plain(q), q.Extra)
}

// unknownFields returns the members of the JSON object data not named in known,
// or nil when there are none.
func unknownFields(data []byte, known []string) (Extra, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(fields, k)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return Extra(fields), nil
}

// marshalWithExtra encodes v and adds the extra members it does not already carry.
func marshalWithExtra(v any, extra Extra) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := fields[k]; !ok {
			fields[k] = raw
		}
	}
	return json.Marshal(fields)
}
