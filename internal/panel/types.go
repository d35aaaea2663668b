package panel

import (
	"encoding/json"
	"strings"
)

// Credentials address one guild's panel.
type Credentials struct {
	URL    string
	APIKey string
}

// Signal is a power action understood by the panel.
type Signal string

const (
	SignalStart   Signal = "start"
	SignalStop    Signal = "stop"
	SignalRestart Signal = "restart"
	SignalKill    Signal = "kill"
)

// Valid reports whether s is one of the four known signals.
func (s Signal) Valid() bool {
	switch s {
	case SignalStart, SignalStop, SignalRestart, SignalKill:
		return true
	}
	return false
}

// Limits are the configured ceilings of a server. Zero means unlimited.
type Limits struct {
	MemoryMB   float64
	DiskMB     float64
	CPUPercent float64
}

// ResourceStats is the live usage of a server.
type ResourceStats struct {
	State          string
	MemoryBytes    float64
	CPUAbsolute    float64
	DiskBytes      float64
	NetworkRxBytes float64
	NetworkTxBytes float64
	Limits         Limits
}

// Server is the subset of a server record used for names and queue status.
type Server struct {
	Name                 string
	IsQueued             bool
	Position             *int
	EstimatedTimeSeconds *int
	QueueLength          int
}

// QueueJoin is the panel's answer to a join-queue request. Both fields may be
// empty; the panel is free to answer with no body.
type QueueJoin struct {
	Message  string
	Position *int
}

// ServerSummary is one entry of the server listing.
type ServerSummary struct {
	Name       string
	UUID       string
	Identifier string
}

// Wire formats. Numbers are decoded as float64 so that a panel sending
// 1024.0 where an integer is expected does not void the whole body.

type resourcesResponse struct {
	Attributes struct {
		CurrentState string `json:"current_state"`
		Resources    struct {
			MemoryBytes float64 `json:"memory_bytes"`
			CPUAbsolute float64 `json:"cpu_absolute"`
			DiskBytes   float64 `json:"disk_bytes"`
			Network     struct {
				RxBytes float64 `json:"rx_bytes"`
				TxBytes float64 `json:"tx_bytes"`
			} `json:"network"`
		} `json:"resources"`
		Limits struct {
			Memory float64 `json:"memory"`
			Disk   float64 `json:"disk"`
			CPU    float64 `json:"cpu"`
		} `json:"limits"`
	} `json:"attributes"`
}

func (r resourcesResponse) stats() ResourceStats {
	a := r.Attributes
	state := a.CurrentState
	if state == "" {
		state = "unknown"
	}
	return ResourceStats{
		State:          state,
		MemoryBytes:    a.Resources.MemoryBytes,
		CPUAbsolute:    a.Resources.CPUAbsolute,
		DiskBytes:      a.Resources.DiskBytes,
		NetworkRxBytes: a.Resources.Network.RxBytes,
		NetworkTxBytes: a.Resources.Network.TxBytes,
		Limits: Limits{
			MemoryMB:   a.Limits.Memory,
			DiskMB:     a.Limits.Disk,
			CPUPercent: a.Limits.CPU,
		},
	}
}

type serverResponse struct {
	Attributes struct {
		Name                 string   `json:"name"`
		IsQueued             bool     `json:"is_queued"`
		Position             *float64 `json:"position"`
		EstimatedTimeSeconds *float64 `json:"estimated_time_seconds"`
		QueueLength          float64  `json:"queue_length"`
	} `json:"attributes"`
}

func (r serverResponse) server() Server {
	a := r.Attributes
	return Server{
		Name:                 a.Name,
		IsQueued:             a.IsQueued,
		Position:             intPtr(a.Position),
		EstimatedTimeSeconds: intPtr(a.EstimatedTimeSeconds),
		QueueLength:          int(a.QueueLength),
	}
}

type queueJoinResponse struct {
	Attributes struct {
		Message  string   `json:"message"`
		Position *float64 `json:"position"`
	} `json:"attributes"`
}

type listResponse struct {
	Data []struct {
		Attributes struct {
			Name       string `json:"name"`
			UUID       string `json:"uuid"`
			Identifier string `json:"identifier"`
		} `json:"attributes"`
	} `json:"data"`
}

func (r listResponse) servers() []ServerSummary {
	out := make([]ServerSummary, 0, len(r.Data))
	for _, d := range r.Data {
		s := ServerSummary{
			Name:       d.Attributes.Name,
			UUID:       d.Attributes.UUID,
			Identifier: d.Attributes.Identifier,
		}
		if s.Name == "" {
			s.Name = "No Name"
		}
		if s.UUID == "" {
			s.UUID = "No UUID"
		}
		if s.Identifier == "" {
			s.Identifier = s.UUID
		}
		out = append(out, s)
	}
	return out
}

type errorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Status string `json:"status"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// remoteDetail extracts errors[0].detail from a panel error body.
func remoteDetail(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil || len(e.Errors) == 0 {
		return ""
	}
	return strings.TrimSpace(e.Errors[0].Detail)
}

func intPtr(f *float64) *int {
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}
