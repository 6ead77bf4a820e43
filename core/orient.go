package core

import "github.com/signalsfoundry/rackplan/model"

// Group is the functional class used to orient a traced path.
type Group string

const (
	GroupServer Group = "server"
	GroupSwitch Group = "switch"
	GroupPatch  Group = "patch"
	GroupOther  Group = "other"
)

// groupRank is the fixed priority order, highest first.
var groupRank = []Group{GroupServer, GroupSwitch, GroupPatch, GroupOther}

func rankOf(g Group) int {
	for i, v := range groupRank {
		if v == g {
			return i
		}
	}
	return len(groupRank)
}

// Classify maps a device type onto its functional group.
func Classify(t model.DeviceType) Group {
	switch t {
	case model.DeviceServer:
		return GroupServer
	case model.DeviceSwitch:
		return GroupSwitch
	case model.DevicePatchPanel, model.DeviceOpticalDrawer:
		return GroupPatch
	default:
		return GroupOther
	}
}

// roles picks the expected group at path ends, one hop in, and further in.
type roles struct {
	end, edge, middle Group
}

func pickRoles(segs []PathSegment) roles {
	present := make(map[Group]bool, len(groupRank))
	for _, s := range segs {
		present[s.Group] = true
	}
	pick := func(preferred Group) Group {
		if present[preferred] {
			return preferred
		}
		for _, g := range groupRank {
			if present[g] {
				return g
			}
		}
		return GroupOther
	}
	return roles{end: pick(GroupServer), edge: pick(GroupSwitch), middle: pick(GroupPatch)}
}

func (r roles) expected(pos, n int) Group {
	switch dist := min(pos, n-1-pos); dist {
	case 0:
		return r.end
	case 1:
		return r.edge
	default:
		return r.middle
	}
}

func (r roles) score(segs []PathSegment) int {
	score := 0
	for i, s := range segs {
		if s.Group == r.expected(i, len(segs)) {
			score++
		}
	}
	return score
}

// OrientationScore counts positions whose group matches the expected group
// for that position.
func OrientationScore(segs []PathSegment) int {
	return pickRoles(segs).score(segs)
}

// Orient returns segs in display order, so the same physical run reads the
// same way whichever end it was traced from. The ordering with the higher
// score wins; on a tie the one starting with the higher-priority group wins.
// Remaining ties compare the full group sequence and then port keys.
func Orient(segs []PathSegment) []PathSegment {
	fwd := make([]PathSegment, len(segs))
	copy(fwd, segs)
	if len(fwd) < 2 {
		return fwd
	}
	rev := make([]PathSegment, len(segs))
	for i, s := range segs {
		rev[len(segs)-1-i] = s
	}

	r := pickRoles(segs)
	sf, sr := r.score(fwd), r.score(rev)
	switch {
	case sf > sr:
		return fwd
	case sr > sf:
		return rev
	}

	for i := range fwd {
		a, b := rankOf(fwd[i].Group), rankOf(rev[i].Group)
		if a != b {
			if b < a {
				return rev
			}
			return fwd
		}
	}
	for i := range fwd {
		a, b := fwd[i].Port.Key(), rev[i].Port.Key()
		if a != b {
			if b < a {
				return rev
			}
			return fwd
		}
	}
	return fwd
}
