package session

import "lorad/internal/engine"

// prefill decodes the prompt in engine-sized chunks, assigning each token a
// strictly increasing cache position starting at zero. Output logits are
// requested only for the final token of the final chunk; intermediate
// positions exist solely to populate the cache.
func prefill(ec engine.Context, tokens []engine.Token) error {
	limit := ec.NBatch()
	if limit <= 0 {
		limit = len(tokens)
	}
	pos := 0
	for idx := 0; idx < len(tokens); {
		take := len(tokens) - idx
		if take > limit {
			take = limit
		}
		b := engine.Batch{
			Tokens: tokens[idx : idx+take],
			Pos:    make([]int32, take),
			Logits: make([]bool, take),
		}
		for i := 0; i < take; i++ {
			b.Pos[i] = int32(pos + i)
			b.Logits[i] = idx+i+1 == len(tokens)
		}
		if err := ec.Decode(b); err != nil {
			return wrapError(KindDecodeFailure, "prompt decode failed", err)
		}
		pos += take
		idx += take
	}
	return nil
}

// decodeOne feeds a single freshly sampled token back at the next position.
func decodeOne(ec engine.Context, t engine.Token, pos int) error {
	b := engine.Batch{
		Tokens: []engine.Token{t},
		Pos:    []int32{int32(pos)},
		Logits: []bool{true},
	}
	return ec.Decode(b)
}
