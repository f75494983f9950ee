// Package topology holds the runtime operating mode that decides whether a
// case may leave the device.
package topology

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the administrative operating mode.
type Mode string

const (
	// Offline never permits an outbound model call.
	Offline Mode = "OFFLINE"
	// Hybrid permits outbound calls only when the router escalates.
	Hybrid Mode = "HYBRID"
	// Cloud forces escalation for every case.
	Cloud Mode = "CLOUD"
)

// ParseMode accepts any casing of a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case Offline:
		return Offline, nil
	case Hybrid:
		return Hybrid, nil
	case Cloud:
		return Cloud, nil
	default:
		return "", fmt.Errorf("unknown topology mode %q", s)
	}
}

// Policy is an immutable snapshot of the topology configuration. Values are
// copied on read, so a case that captured a Policy never observes later
// administrative changes.
type Policy struct {
	Mode                  Mode      `json:"mode"`
	FallbackEnabled       bool      `json:"fallback_enabled"`
	VisionEnabled         bool      `json:"vision_enabled"`
	ExecutiveAgentEnabled bool      `json:"executive_agent_enabled"`
	DataCollectionEnabled bool      `json:"data_collection_enabled"`
	UpdatedAt             time.Time `json:"updated_at"`
	UpdatedBy             string    `json:"updated_by,omitempty"`
}

// DefaultPolicy is HYBRID with every feature toggle on and data collection off.
func DefaultPolicy() Policy {
	return Policy{
		Mode:                  Hybrid,
		FallbackEnabled:       true,
		VisionEnabled:         true,
		ExecutiveAgentEnabled: true,
		UpdatedAt:             time.Now().UTC(),
		UpdatedBy:             "system",
	}
}

// GetMode returns the operating mode.
func (p Policy) GetMode() Mode { return p.Mode }

// IsRemoteAllowed reports whether any outbound model call may be made.
func (p Policy) IsRemoteAllowed() bool {
	return p.Mode == Hybrid || p.Mode == Cloud
}

// IsVisionAllowed reports whether image analysis may run.
func (p Policy) IsVisionAllowed() bool {
	return p.VisionEnabled && p.IsRemoteAllowed()
}

// ForcesEscalation reports whether every case escalates regardless of the
// router's decision.
func (p Policy) ForcesEscalation() bool {
	return p.Mode == Cloud
}

// Validate rejects policies with an unknown mode.
func (p Policy) Validate() error {
	_, err := ParseMode(string(p.Mode))
	return err
}

// Update is a partial administrative change; nil fields are left untouched.
type Update struct {
	Mode                  *Mode `json:"mode,omitempty"`
	FallbackEnabled       *bool `json:"fallback_enabled,omitempty"`
	VisionEnabled         *bool `json:"vision_enabled,omitempty"`
	ExecutiveAgentEnabled *bool `json:"executive_agent_enabled,omitempty"`
	DataCollectionEnabled *bool `json:"data_collection_enabled,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Mode == nil && u.FallbackEnabled == nil && u.VisionEnabled == nil &&
		u.ExecutiveAgentEnabled == nil && u.DataCollectionEnabled == nil
}

func (u Update) apply(p Policy) (Policy, error) {
	if u.Mode != nil {
		m, err := ParseMode(string(*u.Mode))
		if err != nil {
			return p, err
		}
		p.Mode = m
	}
	if u.FallbackEnabled != nil {
		p.FallbackEnabled = *u.FallbackEnabled
	}
	if u.VisionEnabled != nil {
		p.VisionEnabled = *u.VisionEnabled
	}
	if u.ExecutiveAgentEnabled != nil {
		p.ExecutiveAgentEnabled = *u.ExecutiveAgentEnabled
	}
	if u.DataCollectionEnabled != nil {
		p.DataCollectionEnabled = *u.DataCollectionEnabled
	}
	return p, nil
}
