package logger

import dLog "pglisten/internal/domain/log"

type nop struct{}

// Nop returns a logger that discards everything. Used as the default in
// library-style constructors and in tests.
func Nop() dLog.Logger { return nop{} }

func (nop) Debug(string, ...dLog.Field) {}
func (nop) Info(string, ...dLog.Field)  {}
func (nop) Warn(string, ...dLog.Field)  {}
func (nop) Error(string, ...dLog.Field) {}
