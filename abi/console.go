package abi

import (
	"github.com/dop251/goja_nodejs/console"
	"go.uber.org/zap"
)

// zapPrinter routes script console output to the package logger.
type zapPrinter struct{}

func (zapPrinter) Log(s string)   { Logger().Info(s, zap.String("source", "console")) }
func (zapPrinter) Warn(s string)  { Logger().Warn(s, zap.String("source", "console")) }
func (zapPrinter) Error(s string) { Logger().Error(s, zap.String("source", "console")) }

// ZapPrinter returns a console printer writing to l.
func ZapPrinter(l *zap.Logger) console.Printer {
	return loggerPrinter{l}
}

type loggerPrinter struct{ l *zap.Logger }

func (p loggerPrinter) Log(s string)   { p.l.Info(s, zap.String("source", "console")) }
func (p loggerPrinter) Warn(s string)  { p.l.Warn(s, zap.String("source", "console")) }
func (p loggerPrinter) Error(s string) { p.l.Error(s, zap.String("source", "console")) }
