package netsim

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
)

//
// Video encoder/decoder (spec.md §4.10), grounded on
// _examples/original_source/src/simulator_new/app/codec.py, enriched
// with the minimum-packets-per-frame, padding, and deadline+coverage
// decode rules spec.md adds beyond the source's fixed-cadence one.
//

// lookupRow is one row of the auto-encoder lookup table: for a given
// frame id and model, the encoded size and the SSIM achieved at each
// tenth of loss.
type lookupRow struct {
	frameID int
	sizeB   int
	modelID int
	loss    float64
	ssim    float64
}

// LookupTable is the auto-encoder rate/quality table the encoder
// scans for a target bitrate and the decoder scans for SSIM.
type LookupTable struct {
	rows    []lookupRow
	nFrames int
}

// LoadLookupTable reads a CSV with columns frame_id,size,model_id,
// loss,ssim (spec.md §4.10); no third-party CSV/dataframe library
// appears anywhere in the retrieval pack, so this uses encoding/csv
// (see DESIGN.md).
func LoadLookupTable(path string) (*LookupTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("netsim: opening lookup table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("netsim: reading lookup table: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("netsim: lookup table %s has no data rows", path)
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, want := range []string{"frame_id", "size", "model_id", "loss", "ssim"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("netsim: lookup table %s missing column %q", path, want)
		}
	}

	minFrame, maxFrame := math.MaxInt32, math.MinInt32
	var rows []lookupRow
	for _, rec := range records[1:] {
		frameID, err := strconv.Atoi(rec[col["frame_id"]])
		if err != nil {
			return nil, fmt.Errorf("netsim: lookup table %s: bad frame_id: %w", path, err)
		}
		sizeB, err := strconv.Atoi(rec[col["size"]])
		if err != nil {
			return nil, fmt.Errorf("netsim: lookup table %s: bad size: %w", path, err)
		}
		modelID, err := strconv.Atoi(rec[col["model_id"]])
		if err != nil {
			return nil, fmt.Errorf("netsim: lookup table %s: bad model_id: %w", path, err)
		}
		loss, err := strconv.ParseFloat(rec[col["loss"]], 64)
		if err != nil {
			return nil, fmt.Errorf("netsim: lookup table %s: bad loss: %w", path, err)
		}
		ssim, err := strconv.ParseFloat(rec[col["ssim"]], 64)
		if err != nil {
			return nil, fmt.Errorf("netsim: lookup table %s: bad ssim: %w", path, err)
		}
		rows = append(rows, lookupRow{frameID: frameID, sizeB: sizeB, modelID: modelID, loss: loss, ssim: ssim})
		if frameID < minFrame {
			minFrame = frameID
		}
		if frameID > maxFrame {
			maxFrame = frameID
		}
	}
	return &LookupTable{rows: rows, nFrames: maxFrame - minFrame + 1}, nil
}

// pickEncodeRow returns the largest row at/under targetSizeBytes for
// frameID, falling back to the smallest row for that frame id.
func (t *LookupTable) pickEncodeRow(frameID int, targetSizeBytes float64) lookupRow {
	var best lookupRow
	haveBest := false
	var smallest lookupRow
	haveSmallest := false
	for _, row := range t.rows {
		if row.frameID != frameID {
			continue
		}
		if !haveSmallest || row.sizeB < smallest.sizeB {
			smallest = row
			haveSmallest = true
		}
		if float64(row.sizeB) <= targetSizeBytes {
			if !haveBest || row.sizeB > best.sizeB {
				best = row
				haveBest = true
			}
		}
	}
	if haveBest {
		return best
	}
	return smallest
}

// ssimAt looks up the SSIM for frameID/modelID at the given rounded
// (to a tenth) loss fraction.
func (t *LookupTable) ssimAt(frameID, modelID int, roundedLoss float64) float64 {
	for _, row := range t.rows {
		if row.frameID == frameID && row.modelID == modelID && row.loss == roundedLoss {
			return row.ssim
		}
	}
	return 0
}

// encoderQueuedPkt is one not-yet-sent packet waiting in the
// encoder's outgoing queue.
type encoderQueuedPkt struct {
	sizeBytes int
	appData   AppData
}

// EncoderFrameRecord is one emitted frame's bookkeeping (spec.md §4,
// "Encoder frame record").
type EncoderFrameRecord struct {
	FrameID         int
	TargetBitrateBps float64
	ModelID         int
	FrameSizeByte   int
	EncodeTsMs      int64
	NPkts           int
	PaddingBytes    int
}

// Encoder is the video-streaming application's sender side.
type Encoder struct {
	host      *Host
	cfg       *SimConfig
	table     *LookupTable
	allocator *RateAllocator

	frameID        int
	lastEncodeTsMs int64
	queue          []encoderQueuedPkt

	lastRecord EncoderFrameRecord
}

// NewEncoder constructs an [Encoder] reading from table and
// allocating bitrate via allocator.
func NewEncoder(cfg *SimConfig, table *LookupTable, allocator *RateAllocator) *Encoder {
	return &Encoder{cfg: cfg, table: table, allocator: allocator, lastEncodeTsMs: -1}
}

func (e *Encoder) RegisterHost(h *Host) { e.host = h }

func (e *Encoder) HasData() bool { return len(e.queue) > 0 }

func (e *Encoder) PeekSizeBytes() int {
	if len(e.queue) == 0 {
		return 0
	}
	return e.queue[0].sizeBytes
}

func (e *Encoder) GetPkt() (int, AppData) {
	if len(e.queue) == 0 {
		return 0, AppData{}
	}
	pkt := e.queue[0]
	e.queue = e.queue[1:]
	return pkt.sizeBytes, pkt.appData
}

func (e *Encoder) DeliverPkt(nowMs int64, pkt *Packet) {}

func (e *Encoder) Tick(nowMs int64) {
	frameIntervalMs := 1000.0 / fps
	if float64(nowMs-e.lastEncodeTsMs) < frameIntervalMs {
		return
	}
	e.frameID = (e.frameID + 1) % e.table.nFrames
	e.encode(nowMs)
	e.lastEncodeTsMs = nowMs
}

func (e *Encoder) queuedBytes() int {
	total := 0
	for _, p := range e.queue {
		total += p.sizeBytes
	}
	return total
}

func (e *Encoder) encode(nowMs int64) {
	targetBitrateBps := e.allocator.TargetEncodeBitrateBps(e.queuedBytes())
	targetSizeBytes := targetBitrateBps / fps

	row := e.table.pickEncodeRow(e.frameID, targetSizeBytes)
	frameSizeBytes := row.sizeB
	modelID := row.modelID

	nPkts := frameSizeBytes / e.cfg.MSS
	if frameSizeBytes%e.cfg.MSS != 0 {
		nPkts++
	}
	if nPkts < e.cfg.MinPktsPerFrame {
		nPkts = e.cfg.MinPktsPerFrame
	}

	base := frameSizeBytes / nPkts
	remainder := frameSizeBytes % nPkts
	for i := 0; i < nPkts; i++ {
		size := base
		if i < remainder {
			size++
		}
		e.queue = append(e.queue, encoderQueuedPkt{
			sizeBytes: size,
			appData: AppData{
				FrameID:        e.frameID,
				FrameSizeBytes: frameSizeBytes,
				ModelID:        modelID,
			},
		})
	}

	paddingBytes := 0
	surplus := targetSizeBytes - float64(frameSizeBytes)
	for surplus > 0 {
		size := e.cfg.MSS
		if surplus < float64(size) {
			size = int(surplus)
		}
		if size <= 0 {
			break
		}
		e.queue = append(e.queue, encoderQueuedPkt{
			sizeBytes: size,
			appData:   AppData{FrameID: e.frameID, Padding: true},
		})
		paddingBytes += size
		surplus -= float64(size)
	}

	e.lastRecord = EncoderFrameRecord{
		FrameID:          e.frameID,
		TargetBitrateBps: targetBitrateBps,
		ModelID:          modelID,
		FrameSizeByte:    frameSizeBytes,
		EncodeTsMs:       nowMs,
		NPkts:            nPkts,
		PaddingBytes:     paddingBytes,
	}
}

func (e *Encoder) Reset() {
	e.frameID = 0
	e.lastEncodeTsMs = -1
	e.queue = nil
}

// DecoderFrameRecord is one decoded frame's bookkeeping (spec.md §4,
// "Decoder frame record").
type DecoderFrameRecord struct {
	FrameID          int
	FrameSizeBytes   int
	BytesReceived    int
	NumPkts          int
	NumPktsReceived  int
	ModelID          int
	FirstPktSentTsMs int64
	LastPktSentTsMs  int64
	FirstPktRcvdTsMs int64
	LastPktRcvdTsMs  int64
	FrameLossRate    float64
	SSIM             float64
}

// decoderPendingFrame accumulates arrivals for one not-yet-decoded
// frame id.
type decoderPendingFrame struct {
	bytesReceived    int
	numPktsReceived  int
	frameSizeBytes   int
	modelID          int
	firstPktSentTsMs int64
	lastPktSentTsMs  int64
	firstPktRcvdTsMs int64
	lastPktRcvdTsMs  int64
}

// appFeedbackReceiver is implemented by congestion controllers that
// consume application-level quality feedback (currently [Aurora]'s
// application-aware reward mode).
type appFeedbackReceiver interface {
	SetAppFeedback(frameQuality, avgDelayMs float64)
}

// Decoder is the video-streaming application's receiver side.
type Decoder struct {
	host  *Host
	cfg   *SimConfig
	table *LookupTable

	// ccFeedback is the sender's congestion controller, a separate
	// instance from d.host.CC() (which is the receiver's own, e.g. its
	// own [GCC] for delay-based frame-arrival gradients): application
	// quality feedback must reach whichever side's controller actually
	// sets the rate.
	ccFeedback CongestionControl

	firstDecodeTsMs int64

	// frameID is the wire frame id, wrapped modulo the lookup table's
	// frame count to match [Encoder]'s own wraparound; it keys pending
	// and is what the decoder frame record reports.
	frameID int

	// decodedCount is the absolute number of frames decoded so far,
	// never wrapped: it paces the decode deadline, since frameID alone
	// stalls the deadline clock every time it wraps back to 0.
	decodedCount int64

	pending map[int]*decoderPendingFrame

	prevRecord *DecoderFrameRecord
	lastRecord DecoderFrameRecord
	onFrame    func(rec DecoderFrameRecord)
}

// NewDecoder constructs a [Decoder] reading SSIM values from table.
func NewDecoder(cfg *SimConfig, table *LookupTable) *Decoder {
	return &Decoder{cfg: cfg, table: table, frameID: 1, decodedCount: 1, pending: make(map[int]*decoderPendingFrame)}
}

// SetOnFrame installs a callback invoked with every decoded frame's
// record, used by [StatsRecorder] to populate decoder_log.csv.
func (d *Decoder) SetOnFrame(f func(rec DecoderFrameRecord)) { d.onFrame = f }

// SetCCFeedback installs the congestion controller that should
// receive application-aware quality feedback (spec.md §4.9), wired by
// the [Simulator] to the sender's controller once both hosts exist.
func (d *Decoder) SetCCFeedback(cc CongestionControl) { d.ccFeedback = cc }

func (d *Decoder) RegisterHost(h *Host) {
	d.host = h
	d.firstDecodeTsMs = 0
}

func (d *Decoder) HasData() bool            { return false }
func (d *Decoder) PeekSizeBytes() int       { return 0 }
func (d *Decoder) GetPkt() (int, AppData)   { return 0, AppData{} }

func (d *Decoder) DeliverPkt(nowMs int64, pkt *Packet) {
	if pkt.AppData.Padding {
		return
	}
	fid := pkt.AppData.FrameID
	if fid < d.frameID {
		return
	}
	p, ok := d.pending[fid]
	if !ok {
		p = &decoderPendingFrame{
			frameSizeBytes:   pkt.AppData.FrameSizeBytes,
			modelID:          pkt.AppData.ModelID,
			firstPktSentTsMs: pkt.TsSentMs,
			firstPktRcvdTsMs: pkt.TsRcvdMs,
		}
		d.pending[fid] = p
	}
	p.bytesReceived += pkt.SizeBytes
	p.numPktsReceived++
	p.lastPktSentTsMs = pkt.TsSentMs
	p.lastPktRcvdTsMs = pkt.TsRcvdMs

	d.purgeOld(fid)
}

// purgeOld drops pending frame records older than FrameHistoryCap
// behind the newest frame id seen, bounding memory the source never
// bounds (Design Notes open question).
func (d *Decoder) purgeOld(newestFid int) {
	for fid := range d.pending {
		if newestFid-fid > d.cfg.FrameHistoryCap {
			delete(d.pending, fid)
		}
	}
}

func (d *Decoder) Tick(nowMs int64) {
	for {
		deadlineMs := d.firstDecodeTsMs + d.decodedCount*1000/fps
		if nowMs < deadlineMs {
			return
		}
		p, ok := d.pending[d.frameID]
		if !ok {
			return
		}
		if p.frameSizeBytes <= 0 {
			return
		}
		if float64(p.bytesReceived) < 0.10*float64(p.frameSizeBytes) {
			return
		}
		d.decode(nowMs, p)
		delete(d.pending, d.frameID)
		d.frameID = (d.frameID + 1) % d.table.nFrames
		d.decodedCount++
	}
}

func (d *Decoder) decode(nowMs int64, p *decoderPendingFrame) {
	lossRate := 1 - float64(p.bytesReceived)/float64(p.frameSizeBytes)
	if lossRate < 0 {
		lossRate = 0
	}
	if lossRate > 1 {
		lossRate = 1
	}
	roundedLoss := math.Round(lossRate*10) / 10
	ssim := d.table.ssimAt(d.frameID, p.modelID, roundedLoss)

	rec := DecoderFrameRecord{
		FrameID:          d.frameID,
		FrameSizeBytes:   p.frameSizeBytes,
		BytesReceived:    p.bytesReceived,
		NumPktsReceived:  p.numPktsReceived,
		ModelID:          p.modelID,
		FirstPktSentTsMs: p.firstPktSentTsMs,
		LastPktSentTsMs:  p.lastPktSentTsMs,
		FirstPktRcvdTsMs: p.firstPktRcvdTsMs,
		LastPktRcvdTsMs:  p.lastPktRcvdTsMs,
		FrameLossRate:    lossRate,
		SSIM:             ssim,
	}

	if d.host != nil {
		if gcc, ok := d.host.CC().(*GCC); ok && d.prevRecord != nil {
			gcc.OnFrameRcvd(nowMs, rec.LastPktSentTsMs, rec.LastPktRcvdTsMs,
				d.prevRecord.LastPktSentTsMs, d.prevRecord.LastPktRcvdTsMs)
		}
	}
	if fb, ok := d.ccFeedback.(appFeedbackReceiver); ok {
		avgDelayMs := float64(rec.LastPktRcvdTsMs - rec.LastPktSentTsMs)
		fb.SetAppFeedback(rec.SSIM, avgDelayMs)
	}

	if d.onFrame != nil {
		d.onFrame(rec)
	}
	d.lastRecord = rec
	d.prevRecord = &rec
}

func (d *Decoder) Reset() {
	d.frameID = 1
	d.decodedCount = 1
	d.firstDecodeTsMs = 0
	d.pending = make(map[int]*decoderPendingFrame)
	d.prevRecord = nil
}
