package types

// TestStatus represents the outcome of a single state check.
type TestStatus string

const (
	TestStatusPass    TestStatus = "pass"
	TestStatusFail    TestStatus = "fail"
	TestStatusSkip    TestStatus = "skip"
	TestStatusError   TestStatus = "error"
	TestStatusUpdated TestStatus = "updated"
)

// String implements the Stringer interface
func (s TestStatus) String() string {
	return string(s)
}
