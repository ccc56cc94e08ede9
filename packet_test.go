package netsim

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestPacketCloneIsValueEqualButUnaliased(t *testing.T) {
	p := NewPacket(RTCPPkt, MSS)
	p.ID = 7
	p.ProbeInfo = &ProbeInfo{ProbeClusterID: 3, NumProbePkts: 2}

	cp := p.Clone()

	if diff := cmp.Diff(p, cp, cmpopts.IgnoreUnexported()); diff != "" {
		t.Fatalf("clone diverges from original (-want +got):\n%s", diff)
	}

	cp.ProbeInfo.NumProbePkts = 99
	if p.ProbeInfo.NumProbePkts == 99 {
		t.Fatal("expected Clone to deep-copy ProbeInfo instead of aliasing it")
	}
}

func TestPacketCloneDiffersAfterMutation(t *testing.T) {
	p := NewPacket(DataPkt, MSS)
	cp := p.Clone()
	cp.SizeBytes = MSS * 2

	if diff := cmp.Diff(p, cp, cmpopts.IgnoreUnexported()); diff == "" {
		t.Fatal("expected a mutated clone to diverge from the original")
	}
}
