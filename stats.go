package netsim

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/montanaflynn/stats"
)

//
// StatsRecorder (spec.md §11 "Output artifacts"), grounded on
// _examples/ooni-netem/ndt0.go's CSV-line-by-fmt.Sprintf idiom and on
// integration_test.go's use of github.com/montanaflynn/stats for
// summary statistics.
//

// csvFile wraps an *os.File with the header already written.
type csvFile struct {
	f *os.File
}

func newCSVFile(dir, name, header string) (*csvFile, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("netsim: creating %s: %w", name, err)
	}
	fmt.Fprintln(f, header)
	return &csvFile{f: f}, nil
}

func (c *csvFile) writeln(format string, v ...any) {
	fmt.Fprintf(c.f, format+"\n", v...)
}

func (c *csvFile) Close() error {
	return c.f.Close()
}

// StatsRecorder implements [Recorder] and [Decoder]'s onFrame hook,
// writing per-packet and per-frame CSV logs plus end-of-run summary
// statistics (spec.md §11).
type StatsRecorder struct {
	pktLog     *csvFile
	decoderLog *csvFile
	auroraLog  *csvFile
	gccLog     [2]*csvFile
	pacerLog   *csvFile

	logger Logger

	rttSamplesMs []float64
	owdSamplesMs []float64
}

// NewStatsRecorder creates the CSV logs under dir. Callers must Close
// the returned recorder when the run finishes.
func NewStatsRecorder(dir string, logger Logger) (*StatsRecorder, error) {
	if logger == nil {
		logger = DiscardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("netsim: creating %s: %w", dir, err)
	}

	r := &StatsRecorder{logger: logger}
	var err error
	if r.pktLog, err = newCSVFile(dir, "pkt_log.csv",
		"ts_ms,host_id,event,kind,pkt_id,size_bytes,rtt_ms,owd_ms"); err != nil {
		return nil, err
	}
	if r.decoderLog, err = newCSVFile(dir, "decoder_log.csv",
		"frame_id,frame_size_bytes,bytes_received,num_pkts_received,model_id,frame_loss_rate,ssim"); err != nil {
		return nil, err
	}
	if r.auroraLog, err = newCSVFile(dir, "aurora_mi_log.csv",
		"end_ts_ms,duration_ms,reward,rate_bps"); err != nil {
		return nil, err
	}
	if r.gccLog[0], err = newCSVFile(dir, "gcc_log_0.csv",
		"ts_ms,est_rate_bps,overuse_count"); err != nil {
		return nil, err
	}
	if r.gccLog[1], err = newCSVFile(dir, "gcc_log_1.csv",
		"ts_ms,est_rate_bps,overuse_count"); err != nil {
		return nil, err
	}
	if r.pacerLog, err = newCSVFile(dir, "pacer_log.csv",
		"ts_ms,host_id,pacing_rate_bps"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *StatsRecorder) OnPktSent(nowMs int64, pkt *Packet) {
	r.pktLog.writeln("%d,%d,sent,%s,%d,%d,,", nowMs, -1, pkt.Kind, pkt.ID, pkt.SizeBytes)
}

func (r *StatsRecorder) OnPktRcvd(nowMs int64, pkt *Packet) {
	owdMs := pkt.DelayMs()
	r.owdSamplesMs = append(r.owdSamplesMs, float64(owdMs))
	r.pktLog.writeln("%d,%d,rcvd,%s,%d,%d,,%d", nowMs, -1, pkt.Kind, pkt.ID, pkt.SizeBytes, owdMs)
}

func (r *StatsRecorder) OnPktAcked(nowMs int64, pkt *Packet) {
	rttMs := pkt.RTTMs()
	r.rttSamplesMs = append(r.rttSamplesMs, float64(rttMs))
	r.pktLog.writeln("%d,%d,acked,%s,%d,%d,%d,", nowMs, -1, pkt.Kind, pkt.ID, pkt.SizeBytes, rttMs)
}

func (r *StatsRecorder) OnPktLost(nowMs int64, pkt *Packet) {
	r.pktLog.writeln("%d,%d,lost,%s,%d,%d,,", nowMs, -1, pkt.Kind, pkt.ID, pkt.SizeBytes)
}

func (r *StatsRecorder) OnPktNack(nowMs int64, pkt *Packet) {
	r.pktLog.writeln("%d,%d,nack,%s,%d,%d,,", nowMs, -1, pkt.Kind, pkt.ID, pkt.SizeBytes)
}

// OnDecoderFrame is wired to [Decoder.SetOnFrame].
func (r *StatsRecorder) OnDecoderFrame(rec DecoderFrameRecord) {
	r.decoderLog.writeln("%d,%d,%d,%d,%d,%f,%f",
		rec.FrameID, rec.FrameSizeBytes, rec.BytesReceived, rec.NumPktsReceived,
		rec.ModelID, rec.FrameLossRate, rec.SSIM)
}

// OnAuroraMI is wired to the sender's [Aurora] instance, invoked at
// the close of each monitor interval.
func (r *StatsRecorder) OnAuroraMI(endTsMs, durationMs int64, reward, rateBps float64) {
	r.auroraLog.writeln("%d,%d,%f,%f", endTsMs, durationMs, reward, rateBps)
}

// OnGCCTick logs one of the two GCC instances' state at hostID (0 or 1).
func (r *StatsRecorder) OnGCCTick(nowMs int64, hostID int, estRateBps float64, overuseCount int) {
	if hostID < 0 || hostID > 1 {
		return
	}
	r.gccLog[hostID].writeln("%d,%f,%d", nowMs, estRateBps, overuseCount)
}

// OnPacerTick logs a host's current pacing rate.
func (r *StatsRecorder) OnPacerTick(nowMs int64, hostID int, pacingRateBps float64) {
	r.pacerLog.writeln("%d,%d,%f", nowMs, hostID, pacingRateBps)
}

// Summary is the end-of-run aggregate statistics (spec.md §11).
type Summary struct {
	RTTMeanMs   float64
	RTTMedianMs float64
	RTTP95Ms    float64
	OWDMeanMs   float64
	OWDMedianMs float64
	OWDP95Ms    float64
}

// Summarize computes mean/median/p95 RTT and OWD over every sample
// seen so far.
func (r *StatsRecorder) Summarize() (Summary, error) {
	var s Summary
	var err error
	if len(r.rttSamplesMs) > 0 {
		if s.RTTMeanMs, err = stats.Mean(r.rttSamplesMs); err != nil {
			return s, fmt.Errorf("netsim: summarizing RTT mean: %w", err)
		}
		if s.RTTMedianMs, err = stats.Median(r.rttSamplesMs); err != nil {
			return s, fmt.Errorf("netsim: summarizing RTT median: %w", err)
		}
		if s.RTTP95Ms, err = stats.Percentile(r.rttSamplesMs, 95); err != nil {
			return s, fmt.Errorf("netsim: summarizing RTT p95: %w", err)
		}
	}
	if len(r.owdSamplesMs) > 0 {
		if s.OWDMeanMs, err = stats.Mean(r.owdSamplesMs); err != nil {
			return s, fmt.Errorf("netsim: summarizing OWD mean: %w", err)
		}
		if s.OWDMedianMs, err = stats.Median(r.owdSamplesMs); err != nil {
			return s, fmt.Errorf("netsim: summarizing OWD median: %w", err)
		}
		if s.OWDP95Ms, err = stats.Percentile(r.owdSamplesMs, 95); err != nil {
			return s, fmt.Errorf("netsim: summarizing OWD p95: %w", err)
		}
	}
	return s, nil
}

// Close flushes and closes every underlying log file.
func (r *StatsRecorder) Close() error {
	for _, c := range []*csvFile{r.pktLog, r.decoderLog, r.auroraLog, r.gccLog[0], r.gccLog[1], r.pacerLog} {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}
