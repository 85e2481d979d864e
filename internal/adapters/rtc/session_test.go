package rtc

import "testing"

func TestCandidatePackingRoundTrip(t *testing.T) {
	packed := "audio$0$candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host"

	init, err := unpackCandidate(packed)
	if err != nil {
		t.Fatalf("unpackCandidate: %v", err)
	}
	if *init.SDPMid != "audio" || *init.SDPMLineIndex != 0 {
		t.Errorf("unpacked mid=%q line=%d", *init.SDPMid, *init.SDPMLineIndex)
	}
	if init.Candidate != "candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host" {
		t.Errorf("unpacked candidate = %q", init.Candidate)
	}

	if got := packCandidate(init); got != packed {
		t.Errorf("packCandidate = %q, want %q", got, packed)
	}
}

func TestUnpackCandidateKeepsSeparatorInBody(t *testing.T) {
	// Only the first two separators split fields; the candidate body may
	// contain anything.
	init, err := unpackCandidate("m$1$a$b$c")
	if err != nil {
		t.Fatalf("unpackCandidate: %v", err)
	}
	if init.Candidate != "a$b$c" {
		t.Errorf("candidate = %q, want a$b$c", init.Candidate)
	}
}

func TestUnpackCandidateMalformed(t *testing.T) {
	for _, in := range []string{"", "nodollars", "onlymid$0", "mid$notanumber$cand"} {
		if _, err := unpackCandidate(in); err == nil {
			t.Errorf("unpackCandidate(%q) succeeded, want error", in)
		}
	}
}
