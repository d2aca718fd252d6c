package evaluation

import (
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/dataset"
	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
)

// Preparer turns a decoded example into the candidate and reference rows
// that get scored: text is resolved to ids, the example is validated, and
// both sides are truncated at their end markers.
type Preparer struct {
	Vocabulary *dataset.Vocabulary
	// Truncator defaults to dataset.DefaultTruncator(true).
	Truncator dataset.Truncator
	// MaxDecodingLength bounds the valid length of each beam row. Zero
	// disables the check.
	MaxDecodingLength int
	// MaxReferences bounds the number of reference rows of an example.
	// Zero disables the check.
	MaxReferences int
}

// Prepare resolves, validates and truncates ex. Validation failures wrap
// apperrors.ErrInvalidInput. The returned rows may be degenerate; see
// DegenerateReason.
func (p Preparer) Prepare(ex *dataset.Example) (beam, refs [][]int, err error) {
	ex.Resolve(p.Vocabulary)
	if err := p.validate(ex); err != nil {
		return nil, nil, err
	}

	t := p.Truncator
	if t == (dataset.Truncator{}) {
		t = dataset.DefaultTruncator(true)
	}
	beam = make([][]int, len(ex.Beam))
	for j, row := range ex.Beam {
		beam[j] = t.Candidate(row, ex.ValidLength(j))
	}
	valid := ex.ValidReferences()
	refs = make([][]int, len(valid))
	for i, row := range valid {
		refs[i] = t.Reference(row)
	}
	return beam, refs, nil
}

func (p Preparer) validate(ex *dataset.Example) error {
	if err := ex.Validate(); err != nil {
		return err
	}
	if p.MaxReferences > 0 && len(ex.References) > p.MaxReferences {
		return apperrors.Invalidf("%d references exceed the %d utterances a dialog holds", len(ex.References), p.MaxReferences)
	}
	if p.MaxDecodingLength > 0 {
		for j := range ex.Beam {
			if l := ex.ValidLength(j); l > p.MaxDecodingLength {
				return apperrors.Invalidf("beam row %d length %d exceeds max decoding length %d", j, l, p.MaxDecodingLength)
			}
		}
	}
	return nil
}
