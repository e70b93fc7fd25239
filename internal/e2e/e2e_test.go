// Package e2e runs the whole stack in-process: a scripted engine behind the
// service layer, the real HTTP mux, and the real CLI client library talking
// over a loopback listener.
package e2e

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lorad/internal/engine/enginetest"
	"lorad/internal/httpapi"
	"lorad/internal/loractl"
	"lorad/internal/service"
	"lorad/pkg/types"
)

func startServer(t *testing.T, engCfg enginetest.Config) *loractl.Client {
	t.Helper()
	svc := service.New(service.Config{Engine: enginetest.New(engCfg)})
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(func() {
		srv.Close()
		svc.Close()
	})
	return loractl.NewClient(srv.URL)
}

func TestModelLifecycleOverHTTP(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, enginetest.Config{})

	st, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != "idle" {
		t.Fatalf("initial state = %q", st.State)
	}

	st, err = client.LoadModel(ctx, types.LoadModelRequest{Path: "model.gguf"})
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if st.State != "ready" || st.Model == nil {
		t.Fatalf("post-load status = %+v", st)
	}
	if err := client.WaitReady(ctx, time.Second); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}

	if err := client.UnloadModel(ctx); err != nil {
		t.Fatalf("UnloadModel: %v", err)
	}
	// A second unload surfaces the conflict through the error decoder.
	if err := client.UnloadModel(ctx); err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("second unload err = %v, want HTTP 409", err)
	}
}

func TestGenerateStreamOverHTTP(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, enginetest.Config{Script: enginetest.Toks("streamed text")})

	if _, err := client.LoadModel(ctx, types.LoadModelRequest{Path: "model.gguf"}); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	var chunks []string
	final, err := client.GenerateStream(ctx,
		types.GenerateRequest{Prompt: "hello", Stop: []string{}},
		func(chunk string) { chunks = append(chunks, chunk) })
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if !final.Done || final.Content != "streamed text" {
		t.Fatalf("terminal = %+v", final)
	}
	if got := strings.Join(chunks, ""); got != final.Content {
		t.Fatalf("chunks %q do not reassemble to %q", got, final.Content)
	}
	if final.Usage.CompletionTokens != 13 {
		t.Fatalf("completion tokens = %d, want 13", final.Usage.CompletionTokens)
	}
}

func TestGenerateErrorOverHTTP(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, enginetest.Config{})

	_, err := client.Generate(ctx, types.GenerateRequest{Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("generate without model err = %v, want HTTP 409", err)
	}
}

func TestTrainOverHTTP(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, enginetest.Config{TrainLoss: 2.0, EvalLoss: 2.5})

	if _, err := client.LoadModel(ctx, types.LoadModelRequest{Path: "model.gguf", NCtx: 8, Training: true}); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	var batches, epochs int
	final, err := client.Train(ctx,
		types.TrainRequest{Text: "abcdefghi", Epochs: 2},
		func(types.TrainBatchLine) { batches++ },
		func(e types.TrainEpochLine) {
			epochs++
			if e.NData != 3 || e.SplitIndex != 2 {
				t.Errorf("epoch line split = %d/%d, want 2/3", e.SplitIndex, e.NData)
			}
		})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if !final.Done || final.Epochs != 2 || final.NData != 3 {
		t.Fatalf("terminal = %+v", final)
	}
	if epochs != 2 {
		t.Fatalf("epoch lines = %d, want 2", epochs)
	}
	// Each epoch reports 2 train batches and 1 eval batch.
	if batches != 6 {
		t.Fatalf("batch lines = %d, want 6", batches)
	}

	// The adapter created for training can be saved through the API.
	if err := client.SaveAdapter(ctx, "tuned.gguf"); err != nil {
		t.Fatalf("SaveAdapter: %v", err)
	}
}
