package summary

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// formatDuration formats a run or stage duration.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm%02ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%02dm", hours, mins)
}

// formatMillis formats a time value held in milliseconds.
func formatMillis(ms float64) string {
	if ms == 0 {
		return "0s"
	}
	if ms < 0 {
		return "-" + formatMillis(-ms)
	}
	switch {
	case ms < 0.001:
		return fmt.Sprintf("%.0fns", ms*1e6)
	case ms < 1:
		us := ms * 1000
		if us < 100 {
			return fmt.Sprintf("%.2fµs", us)
		}
		return fmt.Sprintf("%.0fµs", us)
	case ms < 1000:
		if ms < 10 {
			return fmt.Sprintf("%.2fms", ms)
		}
		if ms < 100 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%.0fms", ms)
	case ms < 60*1000:
		return fmt.Sprintf("%.2fs", ms/1000)
	default:
		return formatDuration(time.Duration(ms * float64(time.Millisecond)))
	}
}

// formatNumber formats n with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := strconv.FormatInt(n, 10)
	if len(str) <= 3 {
		return str
	}

	var sb strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// formatBytes formats a byte count.
func formatBytes(bytes float64) string {
	const (
		KB = 1000
		MB = KB * 1000
		GB = MB * 1000
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", bytes/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", bytes/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f kB", bytes/KB)
	default:
		return fmt.Sprintf("%.0f B", bytes)
	}
}

// formatFloat drops the fraction of whole numbers and keeps up to six
// significant digits otherwise.
func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

// formatValue formats a value of series s: times as durations, byte
// counters in bytes, everything else as a plain number.
func formatValue(s *metrics.SeriesSnapshot, v float64) string {
	if s == nil {
		return formatFloat(v)
	}
	switch {
	case s.ValueType == metrics.Time:
		return formatMillis(v)
	case s.Name == metrics.DataReceived:
		return formatBytes(v)
	default:
		return formatFloat(v)
	}
}

// formatStat formats a threshold's observed value. label is the statistic
// as written in the expression, e.g. "p(95)" or "rate".
func formatStat(s *metrics.SeriesSnapshot, label string, v float64) string {
	switch label {
	case "rate":
		if s != nil && s.Kind == metrics.KindRate {
			return formatPercent(v)
		}
		return fmt.Sprintf("%s/s", formatFloat(v))
	case "count":
		return formatFloat(v)
	default:
		return formatValue(s, v)
	}
}
