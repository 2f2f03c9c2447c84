package utils

import "os"

// SafeEnv returns the value of key, or fallback when it is unset or empty.
// Config overrides rely on the empty case: PIA_X= keeps the configured value.
func SafeEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
