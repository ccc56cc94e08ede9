package netsim

//
// File transfer application (spec.md §4.1 Non-goals carve-out /
// "file_transfer" CLI value), grounded on
// _examples/original_source/src/simulator_new/app/file_transfer.py:
// an unbounded backlog on the sender, nothing on the receiver.
//

// FileSender always has a full MSS-sized chunk ready to send.
type FileSender struct {
	host *Host
	mss  int
}

// NewFileSender constructs a [FileSender] emitting mss-sized chunks.
func NewFileSender(mss int) *FileSender {
	return &FileSender{mss: mss}
}

func (s *FileSender) RegisterHost(h *Host) { s.host = h }
func (s *FileSender) HasData() bool        { return true }
func (s *FileSender) PeekSizeBytes() int   { return s.mss }
func (s *FileSender) GetPkt() (int, AppData) {
	return s.mss, AppData{}
}
func (s *FileSender) DeliverPkt(nowMs int64, pkt *Packet) {}
func (s *FileSender) Tick(nowMs int64)                    {}
func (s *FileSender) Reset()                              {}

// FileReceiver never originates data; it only discards delivered
// packets (the transport layer's ACK already closes the loop).
type FileReceiver struct {
	host *Host
}

// NewFileReceiver constructs a [FileReceiver].
func NewFileReceiver() *FileReceiver {
	return &FileReceiver{}
}

func (r *FileReceiver) RegisterHost(h *Host)  { r.host = h }
func (r *FileReceiver) HasData() bool         { return false }
func (r *FileReceiver) PeekSizeBytes() int    { return 0 }
func (r *FileReceiver) GetPkt() (int, AppData) {
	return 0, AppData{}
}
func (r *FileReceiver) DeliverPkt(nowMs int64, pkt *Packet) {}
func (r *FileReceiver) Tick(nowMs int64)                    {}
func (r *FileReceiver) Reset()                              {}
