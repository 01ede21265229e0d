package hook

import (
	"time"

	"github.com/axmq/launchgate/pkg/logger"
)

// LogHook writes a structured log line for every gate event
type LogHook struct {
	*Base
	log logger.Logger
}

// NewLogHook creates a logging hook
func NewLogHook(log logger.Logger) *LogHook {
	return &LogHook{
		Base: NewHookBase("log"),
		log:  logger.OrNop(log).With("component", "gate"),
	}
}

// Provides reports every event
func (h *LogHook) Provides(Event) bool {
	return true
}

func (h *LogHook) OnGateStarted(info GateInfo) error {
	h.log.Info("waiting for sessions", "sessions", info.Sessions, "pending", info.Pending, "push_registered", info.PushRegistered)
	return nil
}

func (h *LogHook) OnSessionSynced(userID string, pending int) error {
	h.log.Info("initial sync complete", "user_id", userID, "pending", pending)
	return nil
}

func (h *LogHook) OnPushRegistered() error {
	h.log.Info("push registered")
	return nil
}

func (h *LogHook) OnPushFallback(err error) error {
	h.log.Warn("push registration failed, using fallback transport", "error", err)
	return nil
}

func (h *LogHook) OnReady(report ReadyReport) error {
	h.log.Debug("gate ready", "sessions", len(report.Sessions), "corrupted", len(report.Corrupted))
	return nil
}

func (h *LogHook) OnNavigated(elapsed time.Duration) error {
	h.log.Info("navigated home", "elapsed", elapsed)
	return nil
}

func (h *LogHook) OnLoggedOut(report ReadyReport, elapsed time.Duration) error {
	h.log.Info("sessions logged out", "corrupted", report.Corrupted, "elapsed", elapsed)
	return nil
}

func (h *LogHook) OnGateClosed(state string) error {
	h.log.Debug("gate closed", "state", state)
	return nil
}
