package viewing

import (
	"encoding/json"
	"testing"
)

func TestConsensus(t *testing.T) {
	tests := []struct {
		name   string
		votes  []Vote
		want   Vote
		wantOK bool
	}{
		{"no viewers", nil, VoteNone, false},
		{"single none", []Vote{VoteNone}, VoteNone, false},
		{"single next", []Vote{VoteAdvance}, VoteAdvance, true},
		{"single prev", []Vote{VoteRetreat}, VoteRetreat, true},
		{"all next", []Vote{VoteAdvance, VoteAdvance, VoteAdvance}, VoteAdvance, true},
		{"all prev", []Vote{VoteRetreat, VoteRetreat}, VoteRetreat, true},
		{"one missing", []Vote{VoteAdvance, VoteNone, VoteAdvance}, VoteNone, false},
		{"first missing", []Vote{VoteNone, VoteAdvance}, VoteNone, false},
		{"disagree", []Vote{VoteAdvance, VoteRetreat}, VoteNone, false},
		{"majority is not enough", []Vote{VoteAdvance, VoteAdvance, VoteRetreat}, VoteNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Consensus(tt.votes)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Consensus(%v) = (%s, %v), want (%s, %v)", tt.votes, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestVoteString(t *testing.T) {
	if VoteAdvance.String() != "next" || VoteRetreat.String() != "prev" || VoteNone.String() != "none" {
		t.Error("unexpected vote names")
	}
	if Vote(42).String() != "unknown" {
		t.Error("out-of-range vote should be unknown")
	}
}

func TestCursorStep(t *testing.T) {
	col := testCollection(t)

	tests := []struct {
		name string
		from Cursor
		vote Vote
		want Cursor
	}{
		{"advance within item", Cursor{0, 0}, VoteAdvance, Cursor{0, 1}},
		{"advance across items", Cursor{0, 2}, VoteAdvance, Cursor{1, 0}},
		{"advance at end", Cursor{1, 1}, VoteAdvance, Cursor{1, 1}},
		{"retreat within item", Cursor{1, 1}, VoteRetreat, Cursor{1, 0}},
		{"retreat across items", Cursor{1, 0}, VoteRetreat, Cursor{0, 2}},
		{"retreat at start", Cursor{0, 0}, VoteRetreat, Cursor{0, 0}},
		{"none", Cursor{0, 1}, VoteNone, Cursor{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.from.Step(col, tt.vote)
			if got != tt.want {
				t.Errorf("%+v.Step(%s) = %+v, want %+v", tt.from, tt.vote, got, tt.want)
			}
			if !got.Valid(col) {
				t.Errorf("step produced invalid cursor %+v", got)
			}
		})
	}
}

func TestProject(t *testing.T) {
	col := testCollection(t)

	got := Project(col, Cursor{Item: 0, Page: 2})
	want := Snapshot{
		MangaName:    "A",
		PageSrc:      "/image?manga=0&page=2",
		MangaScore:   8,
		MangaComment: "first",
		MangaPos:     [2]int{1, 2},
		PagePos:      [2]int{3, 3},
	}
	if got != want {
		t.Errorf("Project = %+v, want %+v", got, want)
	}
}

func TestSnapshotWireFormat(t *testing.T) {
	col := testCollection(t)
	snap := Project(col, Cursor{Item: 1, Page: 0})

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"manga_name", "page_src", "manga_score", "manga_comment", "manga_pos", "page_pos"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}

	var back Snapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.MangaPos != snap.MangaPos || back.PagePos != snap.PagePos {
		t.Errorf("positions changed on round trip: %v/%v -> %v/%v",
			snap.MangaPos, snap.PagePos, back.MangaPos, back.PagePos)
	}
}
