package domain

// StatusSet is a bitmask over Status values.
type StatusSet uint8

func NewStatusSet(statuses ...Status) StatusSet {
	var set StatusSet
	for _, s := range statuses {
		if s.Valid() {
			set |= 1 << s
		}
	}
	return set
}

func (s StatusSet) Contains(st Status) bool {
	return st.Valid() && s&(1<<st) != 0
}

func (s StatusSet) Empty() bool { return s == 0 }

// Statuses lists members in declaration order.
func (s StatusSet) Statuses() []Status {
	out := make([]Status, 0, statusCount)
	for _, st := range Statuses() {
		if s.Contains(st) {
			out = append(out, st)
		}
	}
	return out
}

func (s StatusSet) Strings() []string {
	members := s.Statuses()
	out := make([]string, len(members))
	for i, st := range members {
		out[i] = st.String()
	}
	return out
}

// transitions is indexed by [kind][from]. Every cell is listed explicitly;
// a REFUND row with no members is terminal.
var transitions = [kindCount][statusCount]StatusSet{
	KindDeposit: {
		StatusPending:   NewStatusSet(StatusCompleted, StatusFailed, StatusInReview),
		StatusInReview:  NewStatusSet(StatusCompleted, StatusFailed, StatusRefund),
		StatusCompleted: NewStatusSet(StatusRefund),
		StatusFailed:    NewStatusSet(StatusPending),
		StatusRefund:    NewStatusSet(),
	},
	KindWithdraw: {
		StatusPending:   NewStatusSet(StatusCompleted, StatusFailed, StatusInReview, StatusRefund),
		StatusInReview:  NewStatusSet(StatusCompleted, StatusFailed, StatusRefund),
		StatusCompleted: NewStatusSet(StatusRefund),
		StatusFailed:    NewStatusSet(StatusPending, StatusRefund),
		StatusRefund:    NewStatusSet(),
	},
}

// AllowedNext returns the statuses a record of kind may move to from the
// given status. Out-of-range values yield the empty set.
func AllowedNext(kind Kind, from Status) StatusSet {
	if !kind.Valid() || !from.Valid() {
		return 0
	}
	return transitions[kind][from]
}

// IsAllowed reports whether kind may move from -> to. A same-status move is
// always allowed and is treated as a no-op by callers.
func IsAllowed(kind Kind, from, to Status) bool {
	if from == to {
		return true
	}
	return AllowedNext(kind, from).Contains(to)
}
