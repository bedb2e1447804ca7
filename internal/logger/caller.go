package logger

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const logrusPackage = "github.com/sirupsen/logrus"

// loggerPackage is the import path of this package, resolved at init.
var loggerPackage = func() string {
	pc, _, _, _ := runtime.Caller(0)
	return packageOf(runtime.FuncForPC(pc).Name())
}()

// callerHook records the first frame outside logrus and this package as
// func and file. logrus' own caller reporting stops at the wrappers here.
type callerHook struct{}

func (callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (callerHook) Fire(entry *logrus.Entry) error {
	frame, ok := callSite()
	if !ok {
		return nil
	}
	function, file := prettyCaller(frame)
	entry.Data[logrus.FieldKeyFunc] = function
	entry.Data[logrus.FieldKeyFile] = file
	return nil
}

func callSite() (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if pkg := packageOf(frame.Function); pkg != logrusPackage && pkg != loggerPackage {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

// packageOf returns the import path of a fully qualified function name such
// as "example.com/a/b.(*T).Method".
func packageOf(function string) string {
	slash := strings.LastIndex(function, "/")
	if dot := strings.Index(function[slash+1:], "."); dot != -1 {
		return function[:slash+1+dot]
	}
	return function
}

// prettyCaller trims caller info to package.func and file:line
func prettyCaller(frame runtime.Frame) (function string, file string) {
	function = frame.Function
	if idx := strings.LastIndex(function, "/"); idx != -1 {
		function = function[idx+1:]
	}
	return function, filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
}
