package client

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// updateWaitTimeout is the client-side wait for a flash's terminal signal
// (§5) before UpdateAndWait synthesizes an error rather than blocking
// forever.
const updateWaitTimeout = 120 * time.Second

// UpdateFirmware implements §6's UpdateFirmware(sssss) -> (sss). onProgress,
// if non-nil, is registered before the call is made and is invoked for
// every UpdateProgress signal for h, in-flight and terminal alike — check
// UpdateProgress.Terminal to tell them apart.
func (c *Client) UpdateFirmware(h Handle, firmwareName, typeOfFirmware, location string, rebootImmediately bool, onProgress func(UpdateProgress)) error {
	cb := c.callbacksFor(h)
	c.mu.Lock()
	cb.onUpdateProgress = onProgress
	c.mu.Unlock()

	rebootFlag := "false"
	if rebootImmediately {
		rebootFlag = "true"
	}

	var result, status, message string
	call := c.obj.Call(interfaceName+".UpdateFirmware", 0, strconv.FormatUint(uint64(h), 10), firmwareName, typeOfFirmware, location, rebootFlag)
	if call.Err != nil {
		return fmt.Errorf("update firmware: %w", call.Err)
	}
	if err := call.Store(&result, &status, &message); err != nil {
		return fmt.Errorf("decode UpdateFirmware reply: %w", err)
	}
	if result != "SUCCESS" {
		return fmt.Errorf("update firmware rejected: %s: %s", status, message)
	}
	return nil
}

// UpdateAndWait starts a flash and blocks until its terminal UpdateProgress
// signal arrives or updateWaitTimeout elapses (§5), whichever comes first.
func (c *Client) UpdateAndWait(h Handle, firmwareName, typeOfFirmware, location string, rebootImmediately bool, onProgress func(pct int32)) (UpdateProgress, error) {
	done := make(chan UpdateProgress, 1)
	err := c.UpdateFirmware(h, firmwareName, typeOfFirmware, location, rebootImmediately, func(p UpdateProgress) {
		if !p.Terminal {
			if onProgress != nil {
				onProgress(p.Percent)
			}
			return
		}
		select {
		case done <- p:
		default:
		}
	})
	if err != nil {
		return UpdateProgress{}, err
	}

	select {
	case p := <-done:
		if p.StatusCode == UpdateStatusError {
			return p, fmt.Errorf("update failed: %s", p.Message)
		}
		return p, nil
	case <-time.After(updateWaitTimeout):
		return UpdateProgress{}, errors.New("timed out waiting for update to finish")
	}
}
