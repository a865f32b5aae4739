// Package logger adapts loglib to the domain Logger interface.
package logger

import (
	"github.com/ZhuchkovAA/loglib"
	"github.com/ZhuchkovAA/loglib/config"

	dLog "pglisten/internal/domain/log"
)

type Logger struct {
	Client *loglib.Client
}

// New builds a loglib-backed logger. Entries go to the gRPC sink at
// grpcAddress; fallbackPath is used when the sink is unreachable.
func New(grpcAddress, fallbackPath, serviceName string) (*Logger, error) {
	client, err := loglib.New(config.Config{
		GRPCAddress:  grpcAddress,
		FallbackPath: fallbackPath,
		ServiceName:  serviceName,
	})
	if err != nil {
		return nil, err
	}

	return &Logger{Client: client}, nil
}

func (l *Logger) Debug(message string, fields ...dLog.Field) {
	l.Client.Debug(message, mapFields(fields)...)
}

func (l *Logger) Info(message string, fields ...dLog.Field) {
	l.Client.Info(message, mapFields(fields)...)
}

func (l *Logger) Warn(message string, fields ...dLog.Field) {
	l.Client.Warn(message, mapFields(fields)...)
}

func (l *Logger) Error(message string, fields ...dLog.Field) {
	l.Client.Error(message, mapFields(fields)...)
}

func mapFields(dFields []dLog.Field) []loglib.Field {
	fields := make([]loglib.Field, len(dFields))
	for i, d := range dFields {
		fields[i] = loglib.Field{Key: d.Key, Value: d.Value}
	}
	return fields
}
