package client

import "fmt"

// Register implements §6's RegisterProcess(ss) -> (t). libVersion identifies
// the client library build, matching the method table's second parameter.
func (c *Client) Register(processName, libVersion string) (Handle, error) {
	var id uint64
	call := c.obj.Call(interfaceName+".RegisterProcess", 0, processName, libVersion)
	if call.Err != nil {
		return 0, fmt.Errorf("register %q: %w", processName, call.Err)
	}
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("decode RegisterProcess reply: %w", err)
	}
	return Handle(id), nil
}

// Unregister implements §6's UnregisterProcess(t) -> (b) and drops any
// callbacks still registered for h.
func (c *Client) Unregister(h Handle) error {
	defer c.forget(h)

	var ok bool
	call := c.obj.Call(interfaceName+".UnregisterProcess", 0, uint64(h))
	if call.Err != nil {
		return fmt.Errorf("unregister handle %d: %w", h, call.Err)
	}
	if err := call.Store(&ok); err != nil {
		return fmt.Errorf("decode UnregisterProcess reply: %w", err)
	}
	if !ok {
		return fmt.Errorf("handle %d was not registered", h)
	}
	return nil
}
