package netsim

//
// Core data model and cross-cutting interfaces.
//

// Logger is the logger used throughout the simulator. It is shaped
// like the teacher's Logger so that github.com/apex/log.Log (or any
// other adapter) satisfies it directly.
type Logger interface {
	// Debugf formats and emits a debug message.
	Debugf(format string, v ...any)

	// Debug emits a debug message.
	Debug(message string)

	// Infof formats and emits an informational message.
	Infof(format string, v ...any)

	// Info emits an informational message.
	Info(message string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...any)

	// Warn emits a warning message.
	Warn(message string)
}

// discardLogger is a [Logger] that drops every message. Used as the
// default when a caller (typically a test) does not configure one.
type discardLogger struct{}

func (discardLogger) Debugf(format string, v ...any) {}
func (discardLogger) Debug(message string)           {}
func (discardLogger) Infof(format string, v ...any)  {}
func (discardLogger) Info(message string)            {}
func (discardLogger) Warnf(format string, v ...any)  {}
func (discardLogger) Warn(message string)            {}

// DiscardLogger returns a [Logger] that drops every message.
func DiscardLogger() Logger {
	return discardLogger{}
}

// Ticker is implemented by every component driven by the simulator's
// 1ms global clock. The zero value of concrete tickers is generally
// invalid; use the documented constructors.
type Ticker interface {
	// Tick advances this component's view of time to now (milliseconds
	// since the start of the simulation).
	Tick(nowMs int64)

	// Reset returns the component to its just-constructed state.
	Reset()
}

// SimConfig collects the module-level constants the source treats as
// globals, promoted here to values passed at construction time (see
// Design Notes "module-level default simulator parameters").
type SimConfig struct {
	// MSS is the maximum segment size in bytes.
	MSS int

	// PacingRateUpdateStepMs is the cadence at which the pacer asks the
	// congestion controller for a fresh rate.
	PacingRateUpdateStepMs int64

	// MinPktsPerFrame is the minimum number of packets a video frame is
	// split into.
	MinPktsPerFrame int

	// AuroraHistoryLen is the number of monitor intervals retained in
	// Aurora's observation history.
	AuroraHistoryLen int

	// FrameHistoryCap bounds how many decoded/pending frame records the
	// decoder retains.
	FrameHistoryCap int

	// RTCPIntervalMs is the cadence of RTP receiver RTCP reports.
	RTCPIntervalMs int64

	// REMBIntervalMs is the minimum spacing between REMB reports absent
	// an early trigger.
	REMBIntervalMs int64
}

// DefaultSimConfig returns the [SimConfig] matching the constants
// named throughout spec.md.
func DefaultSimConfig() *SimConfig {
	return &SimConfig{
		MSS:                     MSS,
		PacingRateUpdateStepMs:  DefaultPacingRateUpdateStepMs,
		MinPktsPerFrame:         DefaultMinPktsPerFrame,
		AuroraHistoryLen:        DefaultAuroraHistoryLen,
		FrameHistoryCap:         DefaultFrameHistoryCap,
		RTCPIntervalMs:          50,
		REMBIntervalMs:          1000,
	}
}
