package types

// TestingTB is the subset of testing.TB used by the test helpers, so that
// they can be exercised with a fake.
type TestingTB interface {
	Cleanup(func())
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	FailNow()
	Helper()
	Logf(format string, args ...any)
	Name() string
	Skipf(format string, args ...any)
}
