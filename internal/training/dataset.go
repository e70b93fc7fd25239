// Package training turns raw text into bounded training examples and drives
// adapter-only optimizer epochs against the engine.
package training

import (
	"fmt"

	"lorad/internal/engine"
	"lorad/internal/session"
)

// Dataset is an ordered sequence of fixed-length windows over a (possibly
// padded) token stream. Each example holds n_ctx+1 tokens: the inputs plus
// their next-token targets. Windows start stride tokens apart and always fit
// entirely within the padded sequence.
type Dataset struct {
	tokens []engine.Token
	window int
	stride int
	ndata  int
	source int
}

// NewDataset tokenizes text with a leading beginning-of-sequence marker and
// windows it to nCtx. Inputs shorter than one window plus one stride are
// padded by repeating the whole original token sequence, which preserves
// natural token boundaries in the padding.
func NewDataset(ec engine.Context, text string, nCtx int) (*Dataset, error) {
	tokens := ec.Tokenize(text, true)
	if len(tokens) < 2 {
		return nil, &session.Error{
			Kind: session.KindTrainingTextTooShort,
			Msg:  fmt.Sprintf("training text produced %d tokens, need at least 2", len(tokens)),
		}
	}

	stride := nCtx / 2
	if stride < 1 {
		stride = 1
	}
	window := nCtx + 1
	minTokens := window + stride

	source := len(tokens)
	if len(tokens) < minTokens {
		base := append([]engine.Token(nil), tokens...)
		for len(tokens) < minTokens {
			tokens = append(tokens, base...)
		}
	}

	return &Dataset{
		tokens: tokens,
		window: window,
		stride: stride,
		ndata:  (len(tokens)-window)/stride + 1,
		source: source,
	}, nil
}

func (d *Dataset) Len() int { return d.ndata }

// Example returns window i. The slice aliases the dataset's token buffer.
func (d *Dataset) Example(i int) []engine.Token {
	start := i * d.stride
	return d.tokens[start : start+d.window]
}

func (d *Dataset) Stride() int { return d.stride }

// SourceTokens is the token count before padding, for reporting.
func (d *Dataset) SourceTokens() int { return d.source }

// PaddedTokens is the token count after padding.
func (d *Dataset) PaddedTokens() int { return len(d.tokens) }

// SplitIndex partitions ndata examples into train [0,idx) and eval
// [idx,ndata). With two or more examples at least one is always reserved for
// evaluation; a single example trains alone and evaluation is skipped.
func SplitIndex(ndata int) int {
	if ndata < 2 {
		return ndata
	}
	idx := ndata * 95 / 100
	if idx < 1 {
		idx = 1
	}
	if idx > ndata-1 {
		idx = ndata - 1
	}
	return idx
}
