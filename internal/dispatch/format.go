package dispatch

import (
	"fmt"
	"strconv"
	"strings"
)

const mib = 1024 * 1024

// MaskKey shows the first and last four characters of an API key. Keys of
// eight characters or fewer are shown as is.
func MaskKey(key string) string {
	r := []rune(key)
	if len(r) <= 8 {
		return key
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}

// FormatMB renders a byte count as megabytes with two decimals.
func FormatMB(bytes float64) string {
	return fmt.Sprintf("%.2f MB", bytes/mib)
}

// FormatLimit renders a configured limit; zero or less means unlimited.
func FormatLimit(limit float64, unit string) string {
	if limit <= 0 {
		return "Unlimited"
	}
	return strconv.FormatFloat(limit, 'f', -1, 64) + unit
}

// FormatPercent renders a CPU reading.
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

// FormatETA renders seconds as "M min S sec", or "S sec" under a minute.
func FormatETA(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	m, s := seconds/60, seconds%60
	if m > 0 {
		return fmt.Sprintf("%d min %d sec", m, s)
	}
	return fmt.Sprintf("%d sec", s)
}

// NormalizePanelURL validates the scheme and strips trailing slashes.
func NormalizePanelURL(raw string) (string, bool) {
	u := strings.TrimSpace(raw)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return "", false
	}
	u = strings.TrimRight(u, "/")
	if u == "http:" || u == "https:" {
		return "", false
	}
	return u, true
}
