package training

import (
	"testing"

	"lorad/internal/engine"
	"lorad/internal/engine/enginetest"
	"lorad/internal/session"
)

func newTestContext(t *testing.T, cfg enginetest.Config) *enginetest.Context {
	t.Helper()
	mdl, err := enginetest.New(cfg).LoadModel("test.gguf", engine.ModelParams{})
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	ec, err := mdl.NewContext(engine.ContextParams{})
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	return ec.(*enginetest.Context)
}

func TestNewDatasetPadsShortInput(t *testing.T) {
	ec := newTestContext(t, enginetest.Config{})
	// 9 bytes plus BOS is 10 tokens. With nCtx 8 the window is 9 and the
	// stride 4, so the minimum is 13 tokens and the input doubles to 20.
	ds, err := NewDataset(ec, "abcdefghi", 8)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	if ds.SourceTokens() != 10 {
		t.Fatalf("SourceTokens = %d, want 10", ds.SourceTokens())
	}
	if ds.PaddedTokens() != 20 {
		t.Fatalf("PaddedTokens = %d, want 20", ds.PaddedTokens())
	}
	if ds.Stride() != 4 {
		t.Fatalf("Stride = %d, want 4", ds.Stride())
	}
	if ds.Len() != 3 {
		t.Fatalf("Len = %d, want 3", ds.Len())
	}
	for i := 0; i < ds.Len(); i++ {
		if got := len(ds.Example(i)); got != 9 {
			t.Fatalf("example %d has %d tokens, want 9", i, got)
		}
	}
	if ds.Example(0)[0] != enginetest.BOS {
		t.Fatalf("first example does not start at the sequence head")
	}
	// The second window starts one stride in: token 4 of [BOS a b c d ...].
	if ds.Example(1)[0] != enginetest.Tok('d') {
		t.Fatalf("second example starts at %d, want token for 'd'", ds.Example(1)[0])
	}
	// Padding repeats the whole sequence, so token 10 is BOS again.
	if ds.Example(2)[2] != enginetest.BOS {
		t.Fatalf("padding does not repeat the source sequence")
	}
}

func TestNewDatasetLongInputUnpadded(t *testing.T) {
	ec := newTestContext(t, enginetest.Config{})
	ds, err := NewDataset(ec, "abcdefghijklmnopqrst", 8)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	if ds.PaddedTokens() != 21 || ds.SourceTokens() != 21 {
		t.Fatalf("long input must not be padded: %d/%d", ds.SourceTokens(), ds.PaddedTokens())
	}
	if ds.Len() != 4 {
		t.Fatalf("Len = %d, want 4", ds.Len())
	}
}

func TestNewDatasetTooShort(t *testing.T) {
	ec := newTestContext(t, enginetest.Config{})
	_, err := NewDataset(ec, "", 8)
	if !session.IsKind(err, session.KindTrainingTextTooShort) {
		t.Fatalf("err = %v, want text-too-short kind", err)
	}
	if !session.IsBadInput(err) {
		t.Fatalf("short training text should classify as bad input")
	}
}

func TestSplitIndex(t *testing.T) {
	cases := []struct {
		ndata, want int
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 3},
		{10, 9},
		{20, 19},
		{100, 95},
	}
	for _, c := range cases {
		if got := SplitIndex(c.ndata); got != c.want {
			t.Errorf("SplitIndex(%d) = %d, want %d", c.ndata, got, c.want)
		}
	}
}
