// Package log provides leveled logging for keen-netstate on top of logrus.
//
// Components never reach for a global logger: a *Logger is created once per
// process and handed to the engine, the apply service, the kernel backend and
// the HTTP API. Child loggers add structured fields:
//
//	logger := log.New(log.Options{Verbose: true})
//	logger.WithIface("br0").Debugf("Assigned up priority %d", 1)
//
// Tests use log.Discard() to get a silent logger.
//
// The package-level Debugf/Infof/Warnf/Errorf/Fatalf functions remain for the
// CLI entry point and write through the logger installed with SetDefault.
package log
