package client

import (
	"fmt"
	"strconv"
)

// CheckForUpdate implements §6's CheckForUpdate(s) -> (ssssi) workflow.
// The immediate return is authoritative on a cache hit (§4.C: "no terminal
// signal is emitted" for a hit). onComplete, if non-nil, is registered
// before the call is made and is invoked at most once if the daemon
// instead had to fetch XConf in the background and later emits
// CheckForUpdateComplete for h — matching §13's one-terminal-callback
// decision. It is harmless to pass onComplete on a cache hit; it will
// simply never fire.
func (c *Client) CheckForUpdate(h Handle, onComplete func(CheckResult)) (CheckResult, error) {
	if onComplete != nil {
		cb := c.callbacksFor(h)
		c.mu.Lock()
		cb.onCheckComplete = onComplete
		c.mu.Unlock()
	}

	var cur, avail, details, msg string
	var code int32
	call := c.obj.Call(interfaceName+".CheckForUpdate", 0, strconv.FormatUint(uint64(h), 10))
	if call.Err != nil {
		return CheckResult{}, fmt.Errorf("check for update: %w", call.Err)
	}
	if err := call.Store(&cur, &avail, &details, &msg, &code); err != nil {
		return CheckResult{}, fmt.Errorf("decode CheckForUpdate reply: %w", err)
	}
	return CheckResult{
		CurrentVersion:   cur,
		AvailableVersion: avail,
		UpdateDetails:    details,
		StatusMessage:    msg,
		StatusCode:       code,
	}, nil
}
