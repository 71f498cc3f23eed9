//go:build !linux
// +build !linux

// control/notify_other.go
// Author: momentics <momentics@gmail.com>

package control

import "errors"

var errNotifyUnsupported = errors.New("control: file notifications not supported")

// notifier is unavailable here; ConfManager.Watch polls instead.
type notifier struct{}

func newNotifier() (*notifier, error) { return nil, errNotifyUnsupported }

func (*notifier) Add(string) error        { return errNotifyUnsupported }
func (*notifier) Events() <-chan []string { return nil }
func (*notifier) Close() error            { return nil }
