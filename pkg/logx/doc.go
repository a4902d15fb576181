// Package logx is qctrack's structured logging on top of zerolog.
//
// Console output is human readable with a short file:line caller, the
// optional file sink is JSON lines, and level and sinks can be swapped at
// runtime without invalidating loggers already handed out.
package logx
