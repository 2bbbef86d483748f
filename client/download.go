package client

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// downloadWaitTimeout is the client-side wait for a download's terminal
// signal (§5) before DownloadAndWait synthesizes an error rather than
// blocking forever.
const downloadWaitTimeout = 60 * time.Second

// DownloadFirmware implements §6's DownloadFirmware(ssss) -> (sss).
// onProgress and onError, if non-nil, are registered before the call is
// made and are invoked on every DownloadProgress / DownloadError signal
// for h until Unregister is called.
func (c *Client) DownloadFirmware(h Handle, firmwareName, url, typeOfFirmware string, onProgress func(pct uint32, status, message string), onError func(status, message string)) error {
	cb := c.callbacksFor(h)
	c.mu.Lock()
	cb.onDownloadProgress = onProgress
	cb.onDownloadError = onError
	c.mu.Unlock()

	var result, status, message string
	call := c.obj.Call(interfaceName+".DownloadFirmware", 0, strconv.FormatUint(uint64(h), 10), firmwareName, url, typeOfFirmware)
	if call.Err != nil {
		return fmt.Errorf("download firmware: %w", call.Err)
	}
	if err := call.Store(&result, &status, &message); err != nil {
		return fmt.Errorf("decode DownloadFirmware reply: %w", err)
	}
	if result != "SUCCESS" {
		return fmt.Errorf("download firmware rejected: %s: %s", status, message)
	}
	return nil
}

// DownloadAndWait starts a download and blocks until its terminal signal
// arrives or downloadWaitTimeout elapses (§5), whichever comes first.
func (c *Client) DownloadAndWait(h Handle, firmwareName, url, typeOfFirmware string, onProgress func(pct uint32)) error {
	done := make(chan error, 1)
	report := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	err := c.DownloadFirmware(h, firmwareName, url, typeOfFirmware,
		func(pct uint32, status, message string) {
			if onProgress != nil {
				onProgress(pct)
			}
			if status == "COMPLETED" {
				report(nil)
			}
		},
		func(status, message string) {
			report(fmt.Errorf("download failed: %s: %s", status, message))
		},
	)
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-time.After(downloadWaitTimeout):
		return errors.New("timed out waiting for download to finish")
	}
}
