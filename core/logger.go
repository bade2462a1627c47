package core

// Logger is implemented by services/logger. Trailing args may carry an error,
// extra context maps or the acting academic.Person.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
