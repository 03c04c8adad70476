package viewing

// Vote is one viewer's navigation intent for the current round.
type Vote int

const (
	VoteNone Vote = iota
	VoteAdvance
	VoteRetreat
)

var voteNames = map[Vote]string{
	VoteNone:    "none",
	VoteAdvance: "next",
	VoteRetreat: "prev",
}

func (v Vote) String() string {
	if s, ok := voteNames[v]; ok {
		return s
	}
	return "unknown"
}

// Consensus reports the agreed direction when every vote is cast and all of
// them are the same non-none intent. An empty round never agrees.
func Consensus(votes []Vote) (Vote, bool) {
	if len(votes) == 0 {
		return VoteNone, false
	}
	first := votes[0]
	if first == VoteNone {
		return VoteNone, false
	}
	for _, v := range votes[1:] {
		if v != first {
			return VoteNone, false
		}
	}
	return first, true
}
