package testingstub

/*
T defines several functions that are satisfied by "testing.T".
The transport-layer test helpers (transporttest.Server and friends) are written against this
interface rather than *testing.T directly, so that a package using them does not have to import
"testing" itself (which carries a package initialiser that registers test-mode global flags this
module has no use for outside of _test.go files).
*/
type T interface {
	Helper()
	Error(...interface{})
	Errorf(string, ...interface{})
	Fatal(...interface{})
	Fatalf(string, ...interface{})
	Fail()
	FailNow()
	Failed() bool
	Log(...interface{})
	Logf(string, ...interface{})
	Skip(...interface{})
	// Cleanup registers a function to run when the test and all its subtests complete, letting
	// transporttest.Server close its end of the pipe without every caller remembering to do so.
	Cleanup(func())
}
