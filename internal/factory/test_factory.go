package factory

import (
	"time"

	"github.com/mcoot/anubis-client/internal/cashier"
	"github.com/mcoot/anubis-client/internal/dependencies/mocks"
	"github.com/mcoot/anubis-client/internal/storage/memory"
	"github.com/mcoot/anubis-client/internal/testutil"
	"github.com/mcoot/anubis-client/internal/transport"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock *mocks.MockClock
	Memory    *memory.Storage
}

// NewTestApp creates an App against the given authority with in-memory
// storage, a mocked clock and a fast reconnect policy
func NewTestApp(authority *testutil.FakeAuthority) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	tcfg := transport.DefaultConfig()
	tcfg.URL = authority.URL()
	tcfg.RetryDelay = 20 * time.Millisecond
	tcfg.DialTimeout = time.Second

	cfg := Config{
		Transport: tcfg,
		Cashier:   cashier.Config{BaseURL: authority.HTTPURL()},
	}
	app := newWithDependencies(store, mockClock, cfg, testutil.NopLogger())

	return &TestApp{
		App:       app,
		MockClock: mockClock,
		Memory:    store,
	}
}
