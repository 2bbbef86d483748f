package platform

import "go.uber.org/zap"

// SystemEventEmitter publishes the platform system-state-bus events named
// in §4.F (IMAGE_FWDNLD_FLASH_INPROGRESS, DEFER_CANARY_REBOOT, etc). The
// spec names the events but not the transport a given platform build uses
// for them (sysevent, rtMessage, ...), so this logs them structured instead
// of shelling out to an unnamed tool; a platform build that needs the real
// bus swaps this implementation for one that does.
type SystemEventEmitter struct {
	log *zap.SugaredLogger
}

func NewSystemEventEmitter(log *zap.SugaredLogger) *SystemEventEmitter {
	return &SystemEventEmitter{log: log}
}

func (e *SystemEventEmitter) Emit(event string, attrs map[string]string) {
	fields := make([]interface{}, 0, len(attrs)*2+2)
	fields = append(fields, "event", event)
	for k, v := range attrs {
		fields = append(fields, k, v)
	}
	e.log.Infow("system event", fields...)
}
