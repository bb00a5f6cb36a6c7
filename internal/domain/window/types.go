package window

import (
	"time"

	"github.com/GriffinCanCode/hotexit/internal/domain/session"
)

// Kind separates document windows from auxiliary ones (settings, about)
type Kind string

const (
	KindDocument  Kind = "document"
	KindAuxiliary Kind = "auxiliary"
)

// State is the lifecycle position of a registered window
type State string

const (
	// StateReserved holds a label for a window that has not been launched
	StateReserved State = "reserved"
	// StateLaunching is set while the host shell is creating the window
	StateLaunching State = "launching"
	StateOpen      State = "open"
)

// Window is one entry of the registry
type Window struct {
	Label       string                  `json:"label"`
	Kind        Kind                    `json:"kind"`
	State       State                   `json:"state"`
	Connected   bool                    `json:"connected"`
	Geometry    *session.WindowGeometry `json:"geometry,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	ConnectedAt *time.Time              `json:"connected_at,omitempty"`
}

func (w *Window) clone() *Window {
	out := *w
	if w.Geometry != nil {
		g := *w.Geometry
		out.Geometry = &g
	}
	if w.ConnectedAt != nil {
		t := *w.ConnectedAt
		out.ConnectedAt = &t
	}
	return &out
}

// LaunchRequest is sent to the host shell to create a window
type LaunchRequest struct {
	Label  string `json:"label"`
	X      int32  `json:"x"`
	Y      int32  `json:"y"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// Stats summarises the registry
type Stats struct {
	Total     int `json:"total"`
	Documents int `json:"documents"`
	Connected int `json:"connected"`
	// Pending counts reserved and launching windows
	Pending int `json:"pending"`
}
