// Package tickguard recovers panics raised inside a tick so that a faulty
// host or engine call never takes down the loop running it.
package tickguard

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Run calls fn and recovers a panic raised by it. The panic is logged at
// error level with its stack and reported as ok == false.
func Run(log *slog.Logger, name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if log == nil {
				log = slog.Default()
			}
			log.Error("Recovered from panic.", "procedure", name, "err", fmt.Errorf("%v", r), "stack", string(debug.Stack()))
			ok = false
		}
	}()
	fn()
	return true
}
