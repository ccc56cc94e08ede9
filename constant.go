package netsim

//
// Module-level defaults promoted to named constants and to [SimConfig].
//

// BitsPerByte converts between bits and bytes for bandwidth figures
// expressed in the trace file as megabits per second.
const BitsPerByte = 8

// MSS is the maximum segment size, in bytes, used throughout the
// simulator as the default packet size cap.
const MSS = 1500

// TCPInitCwndByte is the TCP/BBR initial congestion window.
const TCPInitCwndByte = 10 * MSS

// DefaultPacingRateUpdateStepMs is the cadence at which the [Pacer]
// re-queries its [CongestionControl] for a fresh pacing rate.
const DefaultPacingRateUpdateStepMs = 40

// DefaultMinPktsPerFrame is the minimum number of packets the
// [Encoder] splits a frame into, to dilute head-of-line blocking.
const DefaultMinPktsPerFrame = 5

// DefaultAuroraHistoryLen is the number of monitor intervals kept in
// the Aurora observation history.
const DefaultAuroraHistoryLen = 10

// DefaultFrameHistoryCap bounds how many old frame records the
// [Decoder] keeps around, addressing the source's unbounded growth
// (see DESIGN.md Open Question decisions).
const DefaultFrameHistoryCap = 4

// fps is the video encoder/decoder's fixed frame rate.
const fps = 25
