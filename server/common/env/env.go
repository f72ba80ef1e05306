package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func String(key, fallback string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return fallback
}

// Int returns fallback for unset, malformed or negative values. Zero is kept so
// callers can use it to switch a feature off.
func Int(key string, fallback int) int {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func Int64(key string, fallback int64) int64 {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func Bool(key string, fallback bool) bool {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Duration accepts Go duration syntax ("15m", "1h30m") or a bare number of seconds.
func Duration(key string, fallback time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// CSV splits a comma separated value, trimming and de-duplicating items in order.
func CSV(key string, fallback []string) []string {
	v, ok := lookup(key)
	if !ok {
		return append([]string(nil), fallback...)
	}
	result := lo.Uniq(lo.Compact(lo.Map(strings.Split(v, ","), func(part string, _ int) string {
		return strings.TrimSpace(part)
	})))
	if len(result) == 0 {
		return append([]string(nil), fallback...)
	}
	return result
}
