package backend

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number decodes whatever the backend sends for a counter. Whole numbers
// and whole numeric strings within int32 range are kept. Anything else
// (null, missing, garbage, fractions, NaN, infinities) is zero.
type Number int

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return nil
	}
	*n = Number(int(f))
	return nil
}

func (n Number) Int() int {
	return int(n)
}

// ID decodes identifiers sent either as numbers or as strings.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	*id = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*id = ID(v)
	}
	return nil
}
