// Package testing switches the process into test mode for packages that blank-import it.
package testing

import (
	"os"
	stdtesting "testing"

	_ "github.com/odyssey-erp/odyssey-quotes/internal/testing/guard"
)

// TestMain runs m after the guard package has prepared the environment.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
