// Package guard switches the process into test mode when imported, so a
// test that reaches a command entry point never dials Postgres or Redis.
package guard

import "os"

// EnvVar is read by app.InTestMode.
const EnvVar = "ODYSSEY_TEST_MODE"

func init() {
	if os.Getenv(EnvVar) == "" {
		_ = os.Setenv(EnvVar, "1")
	}
}

// Enabled reports whether test mode is on.
func Enabled() bool {
	return os.Getenv(EnvVar) == "1"
}
