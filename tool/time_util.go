package tool

import (
	"time"
)

var l, _ = time.LoadLocation("UTC")

func MakeTimestamp() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

func MakeDate(timestamp int64) string {
	timeFormat := "2006-01-02 15:04:05(UTC)"
	return time.UnixMilli(timestamp).In(l).Format(timeFormat)
}

// ParseDuration 解析时间间隔，为空或格式错误时返回 def
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func IntWithDefault(value, def int) int {
	if value == 0 {
		return def
	}
	return value
}

func StringWithDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
