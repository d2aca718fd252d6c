package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Special tokens occupy the first vocabulary ids, in this order.
const (
	PadToken = "<PAD>"
	BOSToken = "<BOS>"
	EOSToken = "<EOS>"
	UNKToken = "<UNK>"
)

const (
	PadID = iota
	BOSID
	EOSID
	UNKID
)

// Vocabulary maps tokens to ids and back.
type Vocabulary struct {
	tokens []string
	ids    map[string]int
}

// NewVocabulary builds a vocabulary with the special tokens followed by
// tokens. Duplicate or special tokens in the list are rejected.
func NewVocabulary(tokens []string) (*Vocabulary, error) {
	all := append([]string{PadToken, BOSToken, EOSToken, UNKToken}, tokens...)
	v := &Vocabulary{
		tokens: all,
		ids:    make(map[string]int, len(all)),
	}
	for i, tok := range all {
		if _, dup := v.ids[tok]; dup {
			return nil, fmt.Errorf("duplicate vocabulary token %q at line %d", tok, i-UNKID)
		}
		v.ids[tok] = i
	}
	return v, nil
}

// LoadVocabulary reads one token per line. Blank lines are skipped.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary %s: %w", path, err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" {
			continue
		}
		tokens = append(tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary %s: %w", path, err)
	}
	v, err := NewVocabulary(tokens)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary %s: %w", path, err)
	}
	return v, nil
}

// Size returns the number of ids, special tokens included.
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// ID returns the id of tok, or UNKID.
func (v *Vocabulary) ID(tok string) int {
	if id, ok := v.ids[tok]; ok {
		return id
	}
	return UNKID
}

// Token returns the token for id, or UNKToken when id is out of range.
func (v *Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.tokens) {
		return UNKToken
	}
	return v.tokens[id]
}

// Encoder returns a token-to-id mapping for one example. Known tokens keep
// their vocabulary id; each distinct unknown token gets its own fresh id past
// the vocabulary, so two different unknown words never compare equal. A nil
// vocabulary knows only the special tokens.
func (v *Vocabulary) Encoder() func(string) int {
	next := UNKID + 1
	if v != nil {
		next = v.Size()
	}
	fresh := make(map[string]int)
	return func(tok string) int {
		if v != nil {
			if id, ok := v.ids[tok]; ok {
				return id
			}
		} else if id, ok := specialIDs[tok]; ok {
			return id
		}
		id, ok := fresh[tok]
		if !ok {
			id = next
			next++
			fresh[tok] = id
		}
		return id
	}
}

var specialIDs = map[string]int{PadToken: PadID, BOSToken: BOSID, EOSToken: EOSID, UNKToken: UNKID}

func (v *Vocabulary) IDs(tokens []string) []int {
	out := make([]int, len(tokens))
	for i, tok := range tokens {
		out[i] = v.ID(tok)
	}
	return out
}

func (v *Vocabulary) Tokens(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = v.Token(id)
	}
	return out
}
