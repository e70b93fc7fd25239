package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"lorad/internal/engine"
	"lorad/internal/session"
	"lorad/internal/training"
	"lorad/pkg/types"
)

// fakeService scripts every Service method for handler tests.
type fakeService struct {
	ready  bool
	status types.StatusResponse
	models []types.ModelInfo

	genRes    session.Result
	genChunks []string
	genErr    error

	trainResp    types.TrainResponse
	trainBatches []engine.BatchProgress
	trainEpochs  []training.EpochMetrics
	trainErr     error

	loadErr   error
	unloadErr error
	applyErr  error
	saveErr   error
	removeErr error

	loadedReq types.LoadModelRequest
	savedPath string
}

func (f *fakeService) Ready() bool                  { return f.ready }
func (f *fakeService) Status() types.StatusResponse { return f.status }

func (f *fakeService) Models() ([]types.ModelInfo, error) { return f.models, nil }

func (f *fakeService) LoadModel(req types.LoadModelRequest) error {
	f.loadedReq = req
	return f.loadErr
}
func (f *fakeService) UnloadModel() error { return f.unloadErr }

func (f *fakeService) ApplyAdapter(types.AdapterRequest) error { return f.applyErr }
func (f *fakeService) SaveAdapter(path string) error {
	f.savedPath = path
	return f.saveErr
}
func (f *fakeService) RemoveAdapter() error { return f.removeErr }

func (f *fakeService) Generate(context.Context, types.GenerateRequest) (session.Result, error) {
	return f.genRes, f.genErr
}

func (f *fakeService) GenerateStream(_ context.Context, _ types.GenerateRequest, sink session.Sink) (session.Result, error) {
	for _, c := range f.genChunks {
		sink.OnToken(c)
	}
	if f.genErr != nil {
		sink.OnError(f.genErr.Error())
		return session.Result{}, f.genErr
	}
	sink.OnComplete()
	return f.genRes, nil
}

func (f *fakeService) Train(_ context.Context, _ types.TrainRequest, onBatch engine.ProgressFunc, onEpoch func(training.EpochMetrics)) (types.TrainResponse, error) {
	for _, b := range f.trainBatches {
		if onBatch != nil {
			onBatch(b)
		}
	}
	for _, m := range f.trainEpochs {
		if onEpoch != nil {
			onEpoch(m)
		}
	}
	return f.trainResp, f.trainErr
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func ndjsonLines(t *testing.T, body *bytes.Buffer) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			lines = append(lines, s)
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan response: %v", err)
	}
	return lines
}

func TestStatusEndpoint(t *testing.T) {
	svc := &fakeService{status: types.StatusResponse{State: "ready", UptimeS: 1.5}}
	h := NewMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got types.StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != "ready" {
		t.Fatalf("state = %q", got.State)
	}
}

func TestModelsEndpoint(t *testing.T) {
	svc := &fakeService{models: []types.ModelInfo{{ID: "tiny.gguf", Path: "/m/tiny.gguf", SizeBytes: 42}}}
	h := NewMux(svc)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got types.ModelsResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Models) != 1 || got.Models[0].ID != "tiny.gguf" {
		t.Fatalf("models = %+v", got.Models)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without model = %d", w.Code)
	}

	svc.ready = true
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("readyz with model = %d", w.Code)
	}
}

func TestGenerateValidation(t *testing.T) {
	h := NewMux(&fakeService{})

	// Missing content type.
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("no content type = %d", w.Code)
	}

	if w := postJSON(t, h, "/generate", `{not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid body = %d", w.Code)
	}
	if w := postJSON(t, h, "/generate", `{"prompt":"  "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank prompt = %d", w.Code)
	}
}

func TestGenerateNonStream(t *testing.T) {
	svc := &fakeService{genRes: session.Result{
		ID:              "abc-123",
		Content:         "hello",
		PromptTokens:    3,
		TokensGenerated: 5,
		FinishReason:    session.FinishStop,
		Duration:        20 * time.Millisecond,
	}}
	h := NewMux(svc)

	w := postJSON(t, h, "/generate", `{"prompt":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got types.GenerateResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Done || got.Content != "hello" || got.FinishReason != "stop" {
		t.Fatalf("response = %+v", got)
	}
	if got.Usage.TotalTokens != 8 {
		t.Fatalf("total tokens = %d, want 8", got.Usage.TotalTokens)
	}
	if got.DurationMS != 20 {
		t.Fatalf("duration = %v ms, want 20", got.DurationMS)
	}
}

func TestGenerateErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bad input", &session.Error{Kind: session.KindPromptTooLong, Msg: "too long"}, http.StatusBadRequest},
		{"busy", &session.Error{Kind: session.KindBusy, Msg: "busy"}, http.StatusTooManyRequests},
		{"no model", &session.Error{Kind: session.KindModelNotLoaded, Msg: "no model"}, http.StatusConflict},
		{"no optimizer", &session.Error{Kind: session.KindTrainingNotInitialized, Msg: "no optimizer"}, http.StatusConflict},
		{"no backend", &session.Error{Kind: session.KindBackendNotInitialized, Msg: "not built"}, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := NewMux(&fakeService{genErr: c.err})
			w := postJSON(t, h, "/generate", `{"prompt":"hi"}`)
			if w.Code != c.want {
				t.Fatalf("status = %d, want %d", w.Code, c.want)
			}
			var er types.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&er); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if er.Code != c.want || er.Error == "" {
				t.Fatalf("error payload = %+v", er)
			}
		})
	}
}

func TestGenerateStream(t *testing.T) {
	svc := &fakeService{
		genChunks: []string{"he", "llo"},
		genRes: session.Result{
			ID: "abc-123", Content: "hello", PromptTokens: 3,
			TokensGenerated: 2, FinishReason: session.FinishStop,
		},
	}
	h := NewMux(svc)

	w := postJSON(t, h, "/generate", `{"prompt":"hi","stream":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/x-ndjson") {
		t.Fatalf("content type = %q", ct)
	}
	lines := ndjsonLines(t, w.Body)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 2 chunks plus terminal: %v", len(lines), lines)
	}
	var text string
	for _, line := range lines[:2] {
		var c types.GenerateChunk
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			t.Fatalf("chunk line %q: %v", line, err)
		}
		text += c.Content
	}
	if text != "hello" {
		t.Fatalf("streamed text = %q", text)
	}
	var final types.GenerateResponse
	if err := json.Unmarshal([]byte(lines[2]), &final); err != nil {
		t.Fatalf("terminal line %q: %v", lines[2], err)
	}
	if !final.Done || final.Content != "hello" {
		t.Fatalf("terminal = %+v", final)
	}
}

func TestGenerateStreamMidStreamError(t *testing.T) {
	svc := &fakeService{
		genChunks: []string{"par"},
		genErr:    &session.Error{Kind: session.KindDecodeFailure, Msg: "decode failed"},
	}
	h := NewMux(svc)

	w := postJSON(t, h, "/generate", `{"prompt":"hi","stream":true}`)
	lines := ndjsonLines(t, w.Body)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want chunk plus error: %v", len(lines), lines)
	}
	var er types.ErrorResponse
	if err := json.Unmarshal([]byte(lines[1]), &er); err != nil {
		t.Fatalf("error line %q: %v", lines[1], err)
	}
	if er.Code != http.StatusInternalServerError || er.Error == "" {
		t.Fatalf("error line = %+v", er)
	}
}

func TestTrainStream(t *testing.T) {
	eval := 2.5
	svc := &fakeService{
		trainBatches: []engine.BatchProgress{
			{Train: true, Batch: 1, Batches: 2, Loss: 3.0, Elapsed: time.Second},
			{Train: false, Batch: 1, Batches: 1, Loss: 2.5, Elapsed: time.Second},
		},
		trainEpochs: []training.EpochMetrics{{
			Epoch: 0, Epochs: 1, NData: 3, SplitIndex: 2,
			TrainLoss: 3.0, EvalLoss: eval, HasEval: true,
			LearningRate: 1e-4, Duration: time.Second,
		}},
		trainResp: types.TrainResponse{Done: true, Epochs: 1, NData: 3},
	}
	h := NewMux(svc)

	w := postJSON(t, h, "/train", `{"text":"some training text"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	lines := ndjsonLines(t, w.Body)
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 2 batches + epoch + terminal: %v", len(lines), lines)
	}

	var b types.TrainBatchLine
	if err := json.Unmarshal([]byte(lines[0]), &b); err != nil {
		t.Fatalf("batch line: %v", err)
	}
	if b.Phase != "train" || b.Batch != 1 || b.Batches != 2 {
		t.Fatalf("batch line = %+v", b)
	}
	if err := json.Unmarshal([]byte(lines[1]), &b); err != nil {
		t.Fatalf("eval batch line: %v", err)
	}
	if b.Phase != "eval" {
		t.Fatalf("second batch phase = %q", b.Phase)
	}

	var e types.TrainEpochLine
	if err := json.Unmarshal([]byte(lines[2]), &e); err != nil {
		t.Fatalf("epoch line: %v", err)
	}
	if e.NData != 3 || e.SplitIndex != 2 || e.EvalLoss == nil || *e.EvalLoss != eval {
		t.Fatalf("epoch line = %+v", e)
	}

	var done types.TrainResponse
	if err := json.Unmarshal([]byte(lines[3]), &done); err != nil {
		t.Fatalf("terminal line: %v", err)
	}
	if !done.Done || done.Epochs != 1 {
		t.Fatalf("terminal = %+v", done)
	}
}

func TestTrainValidation(t *testing.T) {
	h := NewMux(&fakeService{})
	if w := postJSON(t, h, "/train", `{"text":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank text = %d", w.Code)
	}
}

func TestTrainErrorBeforeProgress(t *testing.T) {
	svc := &fakeService{trainErr: &session.Error{Kind: session.KindModelNotLoaded, Msg: "no model"}}
	h := NewMux(svc)
	w := postJSON(t, h, "/train", `{"text":"abc"}`)
	var er types.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Code != http.StatusConflict {
		t.Fatalf("error payload = %+v", er)
	}
}

func TestModelLoadEndpoint(t *testing.T) {
	svc := &fakeService{status: types.StatusResponse{State: "ready"}}
	h := NewMux(svc)

	if w := postJSON(t, h, "/model/load", `{"path":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank path = %d", w.Code)
	}

	w := postJSON(t, h, "/model/load", `{"path":"m.gguf","n_ctx":4096,"training":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if svc.loadedReq.Path != "m.gguf" || svc.loadedReq.NCtx != 4096 || !svc.loadedReq.Training {
		t.Fatalf("decoded request = %+v", svc.loadedReq)
	}
}

func TestModelUnloadEndpoint(t *testing.T) {
	svc := &fakeService{unloadErr: &session.Error{Kind: session.KindModelNotLoaded, Msg: "no model"}}
	h := NewMux(svc)

	req := httptest.NewRequest(http.MethodDelete, "/model", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAdapterSaveEndpoint(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	if w := postJSON(t, h, "/adapter/save", `{"path":" "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank path = %d", w.Code)
	}
	if w := postJSON(t, h, "/adapter/save", `{"path":"out.gguf"}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.savedPath != "out.gguf" {
		t.Fatalf("saved path = %q", svc.savedPath)
	}
}
