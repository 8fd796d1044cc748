// Package logger provides structured logging for dockerkit using zerolog.
//
// Logs go to stderr by default because stdout belongs to the child
// processes dockerkit relays. Loggers are scoped by component and carry
// structured fields such as the process id and command line.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//	  output: "stderr"
//
// # Usage
//
//	log := logger.Get("process")
//	log.Info("process started", logger.Fields("pid", 4242))
package logger
