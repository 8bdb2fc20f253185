package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f, restarting it in a fresh goroutine whenever it
// panics. A negative maxPanics restarts forever; at zero the process exits,
// a crash loop in the update pipeline is not worth limping through.
func GoRecoverable(maxPanics int, job string, f func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		entry := log.WithField("job", job).WithField("origin", panicOrigin())
		entry.Errorf("panic: %v", r)
		if maxPanics == 0 {
			entry.Fatal("panic limit exhausted")
		}
		if maxPanics > 0 {
			maxPanics--
		}
		entry.WithField("restarts_left", maxPanics).Debug("restarting job")
		go GoRecoverable(maxPanics, job, f)
	}()
	f()
}

// panicOrigin walks past the runtime frames of the unwinding panic and
// names the first caller frame that raised it.
func panicOrigin() string {
	var pc [16]uintptr
	n := runtime.Callers(4, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		name := fn.Name()
		if strings.HasPrefix(name, "runtime.") {
			continue
		}
		_, line := fn.FileLine(pc)
		return fmt.Sprintf("%s:%d", name, line)
	}
	return "unknown"
}
