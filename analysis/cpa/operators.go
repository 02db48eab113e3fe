package cpa

// MergeSep never merges.
type MergeSep struct{}

func (MergeSep) Merge(_, s2 AbstractState, _ Precision) (AbstractState, error) {
	return s2, nil
}

// MergeJoin replaces s2 by the join of both states, unless the join adds
// nothing to s2.
type MergeJoin struct {
	Domain AbstractDomain
}

func (m MergeJoin) Merge(s1, s2 AbstractState, _ Precision) (AbstractState, error) {
	if Same(s1, s2) {
		return s2, nil
	}
	joined, err := m.Domain.Join(s1, s2)
	if err != nil {
		return nil, err
	}
	if leq, err := m.Domain.LessOrEqual(joined, s2); err != nil {
		return nil, err
	} else if leq {
		return s2, nil
	}
	return joined, nil
}

// StopSep covers a state if a single state of the partition covers it.
type StopSep struct {
	Domain AbstractDomain
}

func (s StopSep) Stop(state AbstractState, partition []AbstractState, _ Precision) (bool, error) {
	for _, r := range partition {
		if leq, err := s.Domain.LessOrEqual(state, r); err != nil || leq {
			return leq, err
		}
	}
	return false, nil
}

// StopJoin covers a state if the join of the whole partition covers it.
type StopJoin struct {
	Domain AbstractDomain
}

func (s StopJoin) Stop(state AbstractState, partition []AbstractState, _ Precision) (bool, error) {
	if len(partition) == 0 {
		return false, nil
	}
	joined := partition[0]
	for _, r := range partition[1:] {
		var err error
		if joined, err = s.Domain.Join(joined, r); err != nil {
			return false, err
		}
	}
	return s.Domain.LessOrEqual(state, joined)
}

// StopNever explores every state.
type StopNever struct{}

func (StopNever) Stop(AbstractState, []AbstractState, Precision) (bool, error) {
	return false, nil
}

// StaticPrecisionAdjustment leaves state and precision untouched.
type StaticPrecisionAdjustment struct{}

func (StaticPrecisionAdjustment) Prec(s AbstractState, p Precision, _ []AbstractState) (PrecResult, error) {
	return PrecResult{State: s, Precision: p, Action: Continue}, nil
}
