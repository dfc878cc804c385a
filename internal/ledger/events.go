package ledger

import (
	"math/big"
	"time"
)

func eventTime(v interface{}) time.Time {
	ts, ok := v.(*big.Int)
	if !ok {
		return time.Time{}
	}
	return time.Unix(ts.Int64(), 0).UTC()
}

func eventPaperID(v interface{}) int64 {
	id, ok := v.(*big.Int)
	if !ok {
		return 0
	}
	return id.Int64()
}
