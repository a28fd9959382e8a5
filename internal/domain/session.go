package domain

import "time"

type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StateStarting
	StatePlaying
	StateStopping
)

func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type PlaybackSession struct {
	ID         string        `json:"id"`
	Device     DeviceRecord  `json:"device"`
	ContentURI string        `json:"content_uri"`
	State      PlaybackState `json:"-"`
	StartedAt  time.Time     `json:"started_at"`
}
