package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CHAMBERS_TEST_MODE", "1")
	})
}

func init() {
	ensureTestMode()
}

// TestMain lets packages delegate their TestMain while keeping test mode on.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
