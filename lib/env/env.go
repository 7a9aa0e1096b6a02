package env

import (
	"os"
	"strconv"
)

func Debug() bool {
	return os.Getenv("DEBUG") != ""
}

// Timeout returns $MD_TIMEOUT in seconds.
func Timeout() (int, bool) {
	if s := os.Getenv("MD_TIMEOUT"); s != "" {
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return int(i), true
		}
	}
	return -1, false
}

// Iterations returns $MD_ITERATIONS, the simulation steps per resolution pass.
func Iterations() (int, bool) {
	if s := os.Getenv("MD_ITERATIONS"); s != "" {
		i, err := strconv.Atoi(s)
		if err == nil && i > 0 {
			return i, true
		}
	}
	return 0, false
}
