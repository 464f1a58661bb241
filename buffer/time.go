package buffer

import "time"

func millisToTime(millis int64) time.Time {
	return time.UnixMilli(millis)
}
