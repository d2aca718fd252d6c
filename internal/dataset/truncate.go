package dataset

// Truncator cuts decoded and reference sequences down to the tokens that
// take part in scoring.
type Truncator struct {
	BOS      int
	EOS      int
	Pad      int
	StripBOS bool
}

// DefaultTruncator uses the special-token ids of Vocabulary.
func DefaultTruncator(stripBOS bool) Truncator {
	return Truncator{BOS: BOSID, EOS: EOSID, Pad: PadID, StripBOS: stripBOS}
}

// Candidate keeps the first validLen steps of seq, stopping before the first
// end marker. The caller validates validLen.
func (t Truncator) Candidate(seq []int, validLen int) []int {
	seq = seq[:validLen]
	return cutAt(seq, t.EOS)
}

// Reference drops a leading start marker when StripBOS is set and keeps the
// tokens before the first end marker. Without an end marker trailing padding
// is trimmed.
func (t Truncator) Reference(seq []int) []int {
	if t.StripBOS && len(seq) > 0 && seq[0] == t.BOS {
		seq = seq[1:]
	}
	for i, id := range seq {
		if id == t.EOS {
			return seq[:i]
		}
	}
	end := len(seq)
	for end > 0 && seq[end-1] == t.Pad {
		end--
	}
	return seq[:end]
}

func cutAt(seq []int, marker int) []int {
	for i, id := range seq {
		if id == marker {
			return seq[:i]
		}
	}
	return seq
}
