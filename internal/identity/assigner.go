package identity

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/Harshitk-cp/sketchhive/internal/model"
	"github.com/google/uuid"
)

// DefaultColorAttempts bounds the search for an unused color
const DefaultColorAttempts = 2000

// NamePolicy decides what happens when a cleaned name is already in use
type NamePolicy string

const (
	// PolicySuffix appends -1, -2, ... until the name is free
	PolicySuffix NamePolicy = "suffix"
	// PolicyReject refuses the handshake with needName{reason:"taken"}
	PolicyReject NamePolicy = "reject"
)

// ParseNamePolicy converts a configuration value into a NamePolicy
func ParseNamePolicy(s string) (NamePolicy, error) {
	switch NamePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySuffix:
		return PolicySuffix, nil
	case PolicyReject:
		return PolicyReject, nil
	}
	return "", fmt.Errorf("unknown name policy: %q", s)
}

// Taken reports what the currently connected peers hold
type Taken interface {
	NameTaken(name string) bool
	ColorsInUse() map[string]struct{}
	DeviceHolder(device string) (string, bool)
}

// Admission is an accepted handshake, ready to become a peer
type Admission struct {
	Name   string
	Color  string
	Device string
}

// Assigner turns handshakes into unique peer identities
type Assigner struct {
	policy        NamePolicy
	colorAttempts int
	hue           func() float64
	newID         func() string
}

// Option configures an Assigner
type Option func(*Assigner)

// WithHueSource replaces the random hue generator (degrees in [0,360))
func WithHueSource(hue func() float64) Option {
	return func(a *Assigner) {
		a.hue = hue
	}
}

// WithIDSource replaces the peer id generator
func WithIDSource(newID func() string) Option {
	return func(a *Assigner) {
		a.newID = newID
	}
}

// NewAssigner creates a new identity assigner
func NewAssigner(policy NamePolicy, colorAttempts int, opts ...Option) *Assigner {
	if colorAttempts <= 0 {
		colorAttempts = DefaultColorAttempts
	}
	a := &Assigner{
		policy:        policy,
		colorAttempts: colorAttempts,
		hue:           func() float64 { return rand.Float64() * 360 },
		newID:         NewPeerID,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Admit validates a handshake against the peers currently connected.
// Name rules are checked first, then the device lock, then uniqueness.
func (a *Assigner) Admit(hello model.Hello, taken Taken) (Admission, *model.Rejection) {
	name, rejection := CleanName(hello.Name)
	if rejection != nil {
		return Admission{}, rejection
	}

	device, rejection := CleanDevice(hello.Device)
	if rejection != nil {
		return Admission{}, rejection
	}

	if device != "" {
		if _, held := taken.DeviceHolder(device); held {
			return Admission{}, &model.Rejection{Banned: true, Reason: model.ReasonDeviceInUse}
		}
	}

	name, ok := a.uniqueName(name, taken)
	if !ok {
		return Admission{}, &model.Rejection{Reason: model.ReasonTaken}
	}

	return Admission{
		Name:   name,
		Color:  pickColor(a.hue, a.colorAttempts, taken.ColorsInUse()),
		Device: device,
	}, nil
}

// NewID returns a fresh peer id
func (a *Assigner) NewID() string {
	return a.newID()
}

func (a *Assigner) uniqueName(base string, taken Taken) (string, bool) {
	if !taken.NameTaken(base) {
		return base, true
	}
	if a.policy == PolicyReject {
		return "", false
	}
	for n := 1; ; n++ {
		candidate := suffixed(base, n)
		if !taken.NameTaken(candidate) {
			return candidate, true
		}
	}
}

// NewPeerID generates a short random peer id
func NewPeerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
