package platform

import "sync"

// DeviceProperties is the read-only key/value property store named in §6:
// CPU_ARCH, DIFW_PATH, DEVICE_TYPE, DEVICE_NAME, MODEL_NUM, PDRI_ENABLED,
// STAGE2LOCKFILE. The daemon never writes to it; a real deployment backs
// this with the platform's property API, tests back it with a plain map.
type DeviceProperties struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewDeviceProperties(initial map[string]string) *DeviceProperties {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &DeviceProperties{values: values}
}

func (d *DeviceProperties) Get(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[key]
	return v, ok
}

// Set is used only by daemon bootstrap/config loading and tests; the
// runtime components themselves only ever call Get (§6: "read-only from
// this daemon").
func (d *DeviceProperties) Set(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[key] = value
}
