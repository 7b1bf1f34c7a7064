package tfci

// QuotaStep maps a minimum eligible-peer count to the number of peers an
// employee must select. Steps are evaluated in order; the last step whose
// MinPeers is satisfied wins.
type QuotaStep struct {
	MinPeers int
	Quota    int
}

type QuotaLadder []QuotaStep

// DefaultQuotaLadder: with one or two eligible peers a single selection is
// required, three to five require two, six or more require three.
var DefaultQuotaLadder = QuotaLadder{
	{MinPeers: 1, Quota: 1},
	{MinPeers: 3, Quota: 2},
	{MinPeers: 6, Quota: 3},
}

// QuotaFor returns the required selection count for the given number of
// eligible peers. The result is deterministic and never exceeds peerCount.
func (l QuotaLadder) QuotaFor(peerCount int) int {
	if peerCount <= 0 {
		return 0
	}
	quota := 0
	for _, step := range l {
		if peerCount >= step.MinPeers {
			quota = step.Quota
		}
	}
	if quota > peerCount {
		quota = peerCount
	}
	return quota
}
