package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lorad/internal/engine"
)

// DefaultMaxTokens bounds the decode loop when the caller supplies no limit.
const DefaultMaxTokens = 128

// Params configures one generation call.
type Params struct {
	MaxTokens   int
	Temperature float32
	Seed        uint32
	// Stop strings matched against accumulated generated text. A nil slice
	// selects DefaultStops; an empty non-nil slice disables stop strings.
	Stop []string
}

// FinishReason records why the decode loop ended.
type FinishReason string

const (
	// FinishStop: end-of-generation token or a stop rule matched.
	FinishStop FinishReason = "stop"
	// FinishLength: MaxTokens reached. This is success, not an error.
	FinishLength FinishReason = "length"
)

// Result summarizes a completed (or canceled/failed-late) generation.
// Content is post stop-truncation. On decode failure or cancellation mid-loop
// Result still carries everything accumulated before the fault.
type Result struct {
	ID              string
	Content         string
	PromptTokens    int
	TokensGenerated int
	FinishReason    FinishReason
	Duration        time.Duration
}

// Generate runs a full generation call and returns the accumulated text as
// one value. The context cancels the loop at the next iteration boundary.
func Generate(ctx context.Context, ec engine.Context, prompt string, p Params, log zerolog.Logger) (Result, error) {
	return run(ctx, ec, prompt, p, NopSink{}, nil, log)
}

// GenerateStream emits text chunks through the sink as they become safe and
// terminates with exactly one OnComplete or OnError. The returned Result lets
// callers frame a trailing summary; its Content equals the concatenation of
// the emitted chunks.
func GenerateStream(ctx context.Context, ec engine.Context, prompt string, p Params, sink Sink, log zerolog.Logger) (Result, error) {
	res, err := run(ctx, ec, prompt, p, sink, sink.OnToken, log)
	if err != nil {
		sink.OnError(err.Error())
		return res, err
	}
	sink.OnComplete()
	return res, nil
}

func run(ctx context.Context, ec engine.Context, prompt string, p Params, sink Sink, emit func(string), log zerolog.Logger) (Result, error) {
	res := Result{ID: uuid.NewString(), FinishReason: FinishLength}
	log = log.With().Str("session", res.ID).Logger()
	start := time.Now()

	maxGen := p.MaxTokens
	if maxGen <= 0 {
		maxGen = DefaultMaxTokens
	}

	// Fresh generation never sees prior turns' cache.
	ec.ClearCache()

	tokens := ec.Tokenize(prompt, true)
	if len(tokens) == 0 {
		return res, newError(KindEmptyPrompt, "prompt produced no tokens")
	}
	if n := ec.NCtx(); n > 0 && len(tokens) >= n {
		return res, newError(KindPromptTooLong,
			fmt.Sprintf("prompt of %d tokens does not fit context of %d", len(tokens), n))
	}
	res.PromptTokens = len(tokens)

	stops := p.Stop
	if stops == nil {
		stops = DefaultStops
	}
	stopTokens, stopText := resolveStops(ec, stops)

	if err := prefill(ec, tokens); err != nil {
		return res, err
	}
	log.Debug().Int("prompt_tokens", len(tokens)).Msg("prefill done")
	sink.OnLog(fmt.Sprintf("prefill done (%d tokens)", len(tokens)))

	strat := PickStrategy(p.Temperature, p.Seed)
	smpl := ec.NewSampler(strat.samplerParams())
	defer smpl.Close()

	em := NewEmitter(stopText.HoldBack(), emit)
	pos := len(tokens)

	finish := func() {
		em.Flush()
		res.Content = em.Text()
		res.Duration = time.Since(start)
	}

	for i := 0; i < maxGen; i++ {
		if err := ctx.Err(); err != nil {
			// Buffered text is flushed before the error surfaces so nothing
			// generated is silently dropped.
			finish()
			return res, err
		}

		tok := smpl.Sample()
		if ec.IsEOG(tok) {
			log.Debug().Int("at", i+1).Msg("end of generation token")
			res.FinishReason = FinishStop
			break
		}
		if containsToken(stopTokens, tok) {
			log.Debug().Int("at", i+1).Msg("stop token")
			res.FinishReason = FinishStop
			break
		}

		em.Append(ec.TokenText(tok))
		if n, ok := stopText.Match(em.Bytes()); ok {
			em.Truncate(n)
			log.Debug().Int("at", i+1).Msg("stop string matched")
			res.FinishReason = FinishStop
			break
		}

		if err := decodeOne(ec, tok, pos); err != nil {
			finish()
			log.Error().Err(err).Int("at", i+1).Msg("decode failed")
			return res, wrapError(KindDecodeFailure,
				fmt.Sprintf("decode failed at token %d", i+1), err)
		}
		pos++
		res.TokensGenerated++
	}

	finish()
	log.Info().
		Int("tokens", res.TokensGenerated).
		Dur("dur", res.Duration).
		Str("finish", string(res.FinishReason)).
		Msg("generation done")
	sink.OnLog(fmt.Sprintf("generated %d tokens", res.TokensGenerated))
	return res, nil
}

// resolveStops splits configured stop strings into token rules and textual
// rules. A string that tokenizes to exactly one vocabulary token short-cuts
// as a token comparison, but every string also stays in the textual set so a
// stop spelled out across several tokens is still suppressed.
func resolveStops(ec engine.Context, stops []string) ([]engine.Token, *StopSet) {
	var toks []engine.Token
	for _, s := range stops {
		if s == "" {
			continue
		}
		if ts := ec.Tokenize(s, false); len(ts) == 1 {
			toks = append(toks, ts[0])
		}
	}
	return toks, NewStopSet(stops)
}

func containsToken(ts []engine.Token, t engine.Token) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}
