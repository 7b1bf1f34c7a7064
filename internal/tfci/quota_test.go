package tfci

import "testing"

func TestQuotaFor(t *testing.T) {
	cases := []struct {
		peers int
		want  int
	}{
		{0, 0},
		{-1, 0},
		{1, 1},
		{2, 1},
		{3, 2},
		{5, 2},
		{6, 3},
		{50, 3},
	}
	for _, tc := range cases {
		if got := DefaultQuotaLadder.QuotaFor(tc.peers); got != tc.want {
			t.Errorf("QuotaFor(%d) = %d, want %d", tc.peers, got, tc.want)
		}
	}
}

func TestQuotaForClampsToPeerCount(t *testing.T) {
	ladder := QuotaLadder{{MinPeers: 1, Quota: 5}}
	if got := ladder.QuotaFor(2); got != 2 {
		t.Fatalf("QuotaFor(2) = %d, want clamp to 2", got)
	}
}
