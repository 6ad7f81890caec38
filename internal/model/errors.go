package model

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Admission rejection reasons
const (
	ReasonShort       = "short"
	ReasonChars       = "chars"
	ReasonDevice      = "device"
	ReasonTaken       = "taken"
	ReasonDeviceInUse = "device already connected"
)

// Rejection is a refused handshake. Banned rejections lock the device out;
// the others ask the client to pick another name.
type Rejection struct {
	Banned bool
	Reason string
}

// Error implements the error interface
func (r Rejection) Error() string {
	if r.Banned {
		return fmt.Sprintf("banned: %s", r.Reason)
	}
	return fmt.Sprintf("name refused: %s", r.Reason)
}

// Message returns the frame announcing the rejection to the client
func (r Rejection) Message() Outbound {
	if r.Banned {
		return Banned{Reason: r.Reason}
	}
	return NeedName{Reason: r.Reason}
}
