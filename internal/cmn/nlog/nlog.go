// Package nlog is the daemon's logging sink: a thin wrapper over the
// vendored glog fork the rest of the stack already logs with
// (github.com/NVIDIA/aistore/3rdparty/glog), pointed at a file under the
// runtime directory instead of stderr, since xcbd runs headless.
package nlog

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/NVIDIA/aistore/3rdparty/glog"
)

const maxSizeBytes = 8 << 20 // rotate after 8MiB, matching the daemon's modest log volume

// Init points glog at <runtimeDir>/xcbd.log by setting the -log_dir flag
// before the first line is written, and disables the stderr mirror.
// Safe to call more than once (e.g. after config reload).
func Init(runtimeDir string) error {
	if err := flag.Set("log_dir", runtimeDir); err != nil {
		return fmt.Errorf("nlog: setting log_dir: %w", err)
	}
	if err := flag.Set("logtostderr", "false"); err != nil {
		return fmt.Errorf("nlog: setting logtostderr: %w", err)
	}
	glog.MaxSize = maxSizeBytes
	return nil
}

// SetVerbosity sets glog's global -v level used by FastV.
func SetVerbosity(v int) { flag.Set("v", strconv.Itoa(v)) }

// FastV reports whether logging at the given verbosity level is enabled.
// Used to gate chatty Infoln calls on the hot event-pump path without
// building the log line when it's disabled.
func FastV(level int) bool { return bool(glog.V(glog.Level(level))) }

func Infoln(args ...any)                  { glog.Infoln(args...) }
func Infof(format string, args ...any)    { glog.Infof(format, args...) }
func Warningln(args ...any)               { glog.Warningln(args...) }
func Warningf(format string, args ...any) { glog.Warningf(format, args...) }
func Errorln(args ...any)                 { glog.Errorln(args...) }
func Errorf(format string, args ...any)   { glog.Errorf(format, args...) }

// Flush flushes glog's buffered writers. Call once at shutdown.
func Flush() { glog.Flush() }
