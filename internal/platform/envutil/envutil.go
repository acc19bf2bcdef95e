package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file when present. Existing environment variables win.
func LoadDotEnv(paths ...string) bool {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	loaded := false
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			loaded = true
		}
	}
	return loaded
}

func String(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func Bool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func Float(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Seconds reads an integer number of seconds. Negative values clamp to zero.
func Seconds(name string, defSeconds int) time.Duration {
	n := Int(name, defSeconds)
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Second
}

func Millis(name string, defMillis int) time.Duration {
	n := Int(name, defMillis)
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Millisecond
}

func Hours(name string, defHours int) time.Duration {
	n := Int(name, defHours)
	if n <= 0 {
		n = defHours
	}
	return time.Duration(n) * time.Hour
}

// ClampBackoff doubles base per attempt, capped at max.
func ClampBackoff(base time.Duration, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	if max > 0 && sleep > max {
		return max
	}
	return sleep
}
