package mail

import (
	"context"

	goGate "github.com/MrEthical07/goGate"
	"go.uber.org/zap"
)

// LogSender logs each message instead of delivering it. Secret payload values are
// logged only when ShowSecrets is set.
type LogSender struct {
	Logger      *zap.Logger
	ShowSecrets bool
}

var _ goGate.EmailSender = (*LogSender)(nil)

var secretKeys = map[string]bool{"token": true, "code": true}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{Logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg goGate.EmailMessage) error {
	fields := make([]zap.Field, 0, len(msg.Payload)+2)
	fields = append(fields, zap.String("kind", string(msg.Kind)), zap.String("to", msg.To))
	for k, v := range msg.Payload {
		if secretKeys[k] && !s.ShowSecrets {
			v = "[redacted]"
		}
		fields = append(fields, zap.String("payload."+k, v))
	}
	s.Logger.Info("email", fields...)
	return nil
}
