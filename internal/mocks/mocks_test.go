// internal/mocks/mocks_test.go
package mocks

import (
	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
)

// Compile-time checks that the mocks satisfy the interfaces they stand in for.
var (
	_ config.Interface  = (*MockConfig)(nil)
	_ schemas.LLMClient = (*MockLLMClient)(nil)
	_ schemas.Oracle    = (*MockOracle)(nil)
	_ schemas.Store     = (*MockStore)(nil)
)
