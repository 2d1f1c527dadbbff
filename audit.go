package goGate

import (
	"io"

	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	"go.uber.org/zap"
)

// NoOpSink drops audit entries.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit entries in a channel; tests read them from Events.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON audit entry per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink logs audit entries as structured zap lines.
type ZapSink = internalaudit.ZapSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
