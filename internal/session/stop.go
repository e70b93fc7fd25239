package session

import "bytes"

// DefaultStops are conversational turn markers applied when a caller
// configures no stop strings. They cover ChatML, Llama 3, Gemma and Phi
// chat formats. Markers that tokenize to a single vocabulary token are
// matched as tokens; the rest are matched textually.
var DefaultStops = []string{
	"<|im_end|>", "<|im_start|>",
	"<|eot_id|>", "<|start_header_id|>",
	"<end_of_turn>", "<start_of_turn>",
	"<|end|>", "<|user|>", "<|assistant|>",
}

// StopSet holds textual stop rules in configuration order. Matching is a
// suffix check against accumulated generated text; the first rule in
// configuration order wins ties.
type StopSet struct {
	rules [][]byte
	hold  int
}

// NewStopSet builds a StopSet, dropping empty rules and preserving order.
func NewStopSet(rules []string) *StopSet {
	s := &StopSet{}
	for _, r := range rules {
		if r == "" {
			continue
		}
		b := []byte(r)
		s.rules = append(s.rules, b)
		if len(b) > s.hold {
			s.hold = len(b)
		}
	}
	return s
}

// HoldBack is the number of trailing bytes the stream emitter must withhold:
// the length of the longest rule, since any shorter suffix could still grow
// into a match. Zero when no rules are configured.
func (s *StopSet) HoldBack() int { return s.hold }

func (s *StopSet) Empty() bool { return len(s.rules) == 0 }

// Match reports whether any rule is a suffix of text, returning the matched
// length. Rules are tried in configuration order.
func (s *StopSet) Match(text []byte) (int, bool) {
	for _, r := range s.rules {
		if bytes.HasSuffix(text, r) {
			return len(r), true
		}
	}
	return 0, false
}
