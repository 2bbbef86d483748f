package client

import "github.com/godbus/dbus/v5"

func (c *Client) dispatchLoop() {
	for sig := range c.sigCh {
		c.routeSignal(sig)
	}
}

// routeSignal decodes a single signal and fans it out to whichever
// callback was registered for its handle. Split out from dispatchLoop so
// it can be exercised directly with synthetic signals in tests.
func (c *Client) routeSignal(sig *dbus.Signal) {
	if len(sig.Body) == 0 {
		return
	}
	id, ok := sig.Body[0].(uint64)
	if !ok {
		return
	}
	h := Handle(id)

	c.mu.Lock()
	cb, ok := c.callbacks[h]
	c.mu.Unlock()
	if !ok {
		return
	}

	switch sig.Name {
	case interfaceName + ".CheckForUpdateComplete":
		c.routeCheckForUpdateComplete(cb, sig.Body)
	case interfaceName + ".DownloadProgress":
		c.routeDownloadProgress(cb, sig.Body)
	case interfaceName + ".DownloadError":
		c.routeDownloadError(cb, sig.Body)
	case interfaceName + ".UpdateProgress":
		c.routeUpdateProgress(cb, sig.Body)
	}
}

// routeCheckForUpdateComplete decodes §13's `(t i i s s s s)` encoding.
func (c *Client) routeCheckForUpdateComplete(cb *handleCallbacks, body []interface{}) {
	if cb.onCheckComplete == nil || len(body) < 7 {
		return
	}
	statusCode, _ := body[2].(int32)
	cur, _ := body[3].(string)
	avail, _ := body[4].(string)
	details, _ := body[5].(string)
	msg, _ := body[6].(string)
	cb.onCheckComplete(CheckResult{
		CurrentVersion:   cur,
		AvailableVersion: avail,
		UpdateDetails:    details,
		StatusMessage:    msg,
		StatusCode:       statusCode,
	})
}

// routeDownloadProgress decodes §6's `DownloadProgress(t s u s s)`.
func (c *Client) routeDownloadProgress(cb *handleCallbacks, body []interface{}) {
	if cb.onDownloadProgress == nil || len(body) < 5 {
		return
	}
	pct, _ := body[2].(uint32)
	status, _ := body[3].(string)
	message, _ := body[4].(string)
	cb.onDownloadProgress(pct, status, message)
}

// routeDownloadError decodes §6's `DownloadError(t s s s)`.
func (c *Client) routeDownloadError(cb *handleCallbacks, body []interface{}) {
	if cb.onDownloadError == nil || len(body) < 4 {
		return
	}
	status, _ := body[2].(string)
	message, _ := body[3].(string)
	cb.onDownloadError(status, message)
}

// routeUpdateProgress decodes §6's `UpdateProgress(t s i i s)`. Terminal is
// true once statusCode stops being the in-flight sentinel of -1 (§13).
func (c *Client) routeUpdateProgress(cb *handleCallbacks, body []interface{}) {
	if cb.onUpdateProgress == nil || len(body) < 5 {
		return
	}
	pct, _ := body[2].(int32)
	statusCode, _ := body[3].(int32)
	message, _ := body[4].(string)
	cb.onUpdateProgress(UpdateProgress{
		Percent:    pct,
		StatusCode: statusCode,
		Message:    message,
		Terminal:   statusCode != -1,
	})
}
