package models

type ConnectivityState string

const (
	ConnectivityUnknown      ConnectivityState = "unknown"
	ConnectivityConnected    ConnectivityState = "connected"
	ConnectivityDisconnected ConnectivityState = "disconnected"
)

type EngineState string

const (
	EngineInitializing EngineState = "INITIALIZING"
	EngineLive         EngineState = "LIVE"
	EngineOffline      EngineState = "OFFLINE"
	EngineTeardown     EngineState = "TEARDOWN"
)

// Gauge maps the state to a numeric value for the engine state metric.
func (s EngineState) Gauge() float64 {
	switch s {
	case EngineLive:
		return 1
	case EngineOffline:
		return 2
	case EngineTeardown:
		return 3
	default:
		return 0
	}
}
