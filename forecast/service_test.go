package forecast

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"salesforecast/logging"
	"salesforecast/ml"
)

func twelveOnes() *ml.LinearRegression {
	coef := make([]float64, DefaultFeatures)
	for i := range coef {
		coef[i] = 1
	}
	return &ml.LinearRegression{Coefficients: coef, Intercept: 0.5}
}

type failingModel struct {
	err error
}

func (f *failingModel) PredictRows(rows [][]float64) ([]float64, error) { return nil, f.err }
func (f *failingModel) NumFeatures() int                                  { return DefaultFeatures }

type memoryRecorder struct {
	entries []Entry
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, entry Entry) error {
	m.entries = append(m.entries, entry)
	return m.err
}

func newTestService(t *testing.T, model ml.Regressor, recorder Recorder) *Service {
	t.Helper()
	svc, err := NewService(model, Config{Features: DefaultFeatures, Recorder: recorder})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestPredictValidInput(t *testing.T) {
	svc := newTestService(t, twelveOnes(), nil)
	result, err := svc.Predict(context.Background(), []byte(`{"sales_data":[1,2,3,4,5,6,7,8,9,10,11,12]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Prediction) != 1 {
		t.Fatalf("expected one prediction, got %v", result.Prediction)
	}
	if math.Abs(result.Prediction[0]-78.5) > 1e-9 {
		t.Fatalf("expected 78.5, got %v", result.Prediction[0])
	}
}

func TestPredictIsIdempotent(t *testing.T) {
	svc := newTestService(t, twelveOnes(), nil)
	body := []byte(`{"sales_data":[3,1,4,1,5,9,2,6,5,3,5,8.5]}`)
	first, err := svc.Predict(context.Background(), body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Predict(context.Background(), body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Prediction[0] != second.Prediction[0] {
		t.Fatalf("expected identical predictions, got %v and %v", first.Prediction, second.Prediction)
	}
}

func TestPredictErrors(t *testing.T) {
	svc := newTestService(t, twelveOnes(), nil)
	tests := []struct {
		name    string
		body    string
		kind    string
		message string
	}{
		{"empty body", ``, KindInvalidPayload, "Invalid JSON payload"},
		{"not json", `sales_data=1,2,3`, KindInvalidPayload, "Invalid JSON payload"},
		{"truncated", `{"sales_data":[1,2`, KindInvalidPayload, "Invalid JSON payload"},
		{"invalid utf-8", "{\"product_name\":\"\xff\",\"sales_data\":[1,2,3,4,5,6,7,8,9,10,11,12]}", KindInvalidPayload, "Invalid JSON payload"},
		{"empty object", `{}`, KindMissingField, "Missing or invalid JSON payload"},
		{"null", `null`, KindMissingField, "Missing or invalid JSON payload"},
		{"array", `[1,2,3]`, KindMissingField, "Missing or invalid JSON payload"},
		{"other fields", `{"product_name":"shirt","data":[1]}`, KindMissingField, "Missing or invalid JSON payload"},
		{"not an array", `{"sales_data":12}`, KindMissingField, "Missing or invalid JSON payload"},
		{"short", `{"sales_data":[1,2,3]}`, KindArityMismatch, "Expected 12 features, but got 3"},
		{"empty array", `{"sales_data":[]}`, KindArityMismatch, "Expected 12 features, but got 0"},
		{"long", `{"sales_data":[1,2,3,4,5,6,7,8,9,10,11,12,13]}`, KindArityMismatch, "Expected 12 features, but got 13"},
		{"string element", `{"sales_data":[1,2,3,4,5,6,7,8,9,10,11,"x"]}`, KindInference, errStringFeature.Error()},
		{"nested element", `{"sales_data":[1,2,3,4,5,6,7,8,9,10,11,[12]]}`, KindInference, errSequenceFeature.Error()},
		{"null element", `{"sales_data":[1,2,3,4,5,6,7,8,9,10,11,null]}`, KindInference, ml.ErrNonFinite.Error()},
		{"overflow element", `{"sales_data":[1,2,3,4,5,6,7,8,9,10,11,1e400]}`, KindInference, ml.ErrNonFinite.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Predict(context.Background(), []byte(tt.body))
			if err == nil {
				t.Fatalf("expected error, got result %v", result)
			}
			if result.Prediction != nil {
				t.Fatalf("expected no partial result, got %v", result.Prediction)
			}
			if got := Kind(err); got != tt.kind {
				t.Fatalf("expected kind %s, got %s (%v)", tt.kind, got, err)
			}
			if got := Message(err); got != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, got)
			}
		})
	}
}

func TestPredictArityErrorFields(t *testing.T) {
	svc := newTestService(t, twelveOnes(), nil)
	_, err := svc.Predict(context.Background(), []byte(`{"sales_data":[1,2,3]}`))
	var arityErr *ArityError
	if !errors.As(err, &arityErr) {
		t.Fatalf("expected *ArityError, got %T", err)
	}
	if arityErr.Expected != 12 || arityErr.Actual != 3 {
		t.Fatalf("unexpected arity error: %+v", arityErr)
	}
	if !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("expected errors.Is ErrArityMismatch")
	}
}

func TestPredictModelFailure(t *testing.T) {
	cause := errors.New("matrix is singular")
	svc := newTestService(t, &failingModel{err: cause}, nil)
	_, err := svc.Predict(context.Background(), []byte(`{"sales_data":[1,2,3,4,5,6,7,8,9,10,11,12]}`))
	if !errors.Is(err, ErrInference) || !errors.Is(err, cause) {
		t.Fatalf("expected inference error wrapping cause, got %v", err)
	}
	if Message(err) != "matrix is singular" {
		t.Fatalf("unexpected message %q", Message(err))
	}
}

func TestPredictBooleansCoerce(t *testing.T) {
	svc := newTestService(t, twelveOnes(), nil)
	result, err := svc.Predict(context.Background(), []byte(`{"sales_data":[true,false,0,0,0,0,0,0,0,0,0,0]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Prediction[0] != 1.5 {
		t.Fatalf("expected 1.5, got %v", result.Prediction[0])
	}
}

func TestPredictUTF16Body(t *testing.T) {
	svc := newTestService(t, twelveOnes(), nil)
	text := `{"sales_data":[1,1,1,1,1,1,1,1,1,1,1,1]}`
	body := []byte{0xFF, 0xFE}
	for _, r := range text {
		body = append(body, byte(r), 0)
	}
	result, err := svc.Predict(context.Background(), body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Prediction[0] != 12.5 {
		t.Fatalf("expected 12.5, got %v", result.Prediction[0])
	}
}

func TestPredictRecordsEntries(t *testing.T) {
	recorder := &memoryRecorder{err: errors.New("disk full")}
	svc := newTestService(t, twelveOnes(), recorder)
	ctx := logging.WithRequestID(context.Background(), "req-42")

	if _, err := svc.Predict(ctx, []byte(`{"product_name":"linen shirt","sales_data":[0,0,0,0,0,0,0,0,0,0,0,0]}`)); err != nil {
		t.Fatalf("journal failure must not fail predict: %v", err)
	}
	if _, err := svc.Predict(ctx, []byte(`{"sales_data":[1]}`)); err == nil {
		t.Fatalf("expected arity error")
	}

	if len(recorder.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recorder.entries))
	}
	ok := recorder.entries[0]
	if ok.RequestID != "req-42" || ok.ProductName != "linen shirt" || ok.ErrorKind != "" || len(ok.Prediction) != 1 {
		t.Fatalf("unexpected success entry: %+v", ok)
	}
	failed := recorder.entries[1]
	if failed.ErrorKind != KindArityMismatch || !strings.Contains(failed.Error, "but got 1") {
		t.Fatalf("unexpected failure entry: %+v", failed)
	}
}

func TestNewServiceRejectsMismatchedModel(t *testing.T) {
	model := &ml.LinearRegression{Coefficients: []float64{1, 2, 3}}
	if _, err := NewService(model, Config{Features: DefaultFeatures}); err == nil {
		t.Fatalf("expected arity mismatch error")
	}
	if _, err := NewService(nil, Config{}); err == nil {
		t.Fatalf("expected error for nil model")
	}
	svc, err := NewService(twelveOnes(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Features() != DefaultFeatures {
		t.Fatalf("expected default features, got %d", svc.Features())
	}
}

func TestPredictRejectsNonFiniteOutput(t *testing.T) {
	model := twelveOnes()
	model.Coefficients[0] = math.MaxFloat64
	svc := newTestService(t, model, nil)
	_, err := svc.Predict(context.Background(), []byte(`{"sales_data":[1e308,0,0,0,0,0,0,0,0,0,0,0]}`))
	if !errors.Is(err, errNonFinitePrediction) {
		t.Fatalf("expected non-finite prediction error, got %v", err)
	}
}

func TestPredictLogsRawPayload(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	svc, err := NewService(twelveOnes(), Config{Features: DefaultFeatures, Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	bodies := []string{
		`{"product_name":"linen shirt","sales_data":[1,2,3,4,5,6,7,8,9,10,11,12]}`,
		`{"sales_data":[1,2,3]}`,
		`not json`,
	}
	for _, body := range bodies {
		_, _ = svc.Predict(context.Background(), []byte(body))
	}

	received := logs.FilterMessage("predict_request_received").All()
	if len(received) != len(bodies) {
		t.Fatalf("expected %d payload entries, got %d", len(bodies), len(received))
	}
	for i, entry := range received {
		if entry.Level != zap.DebugLevel {
			t.Fatalf("payload must be logged at debug, got %s", entry.Level)
		}
		if got := entry.ContextMap()["payload"]; got != bodies[i] {
			t.Fatalf("expected payload %q, got %v", bodies[i], got)
		}
	}
	if n := logs.FilterMessage("predict_request_rejected").Len(); n != 2 {
		t.Fatalf("expected 2 rejection entries, got %d", n)
	}
}

func TestRejectRecordsInvalidPayload(t *testing.T) {
	recorder := &memoryRecorder{}
	core, logs := observer.New(zap.DebugLevel)
	svc, err := NewService(twelveOnes(), Config{Features: DefaultFeatures, Logger: zap.New(core), Recorder: recorder})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	ctx := logging.WithRequestID(context.Background(), "req-7")

	err = svc.Reject(ctx, []byte("a=1"), errors.New("unsupported content type"))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if Message(err) != "Invalid JSON payload" {
		t.Fatalf("unexpected message %q", Message(err))
	}
	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.RequestID != "req-7" || entry.ErrorKind != KindInvalidPayload || string(entry.Payload) != "a=1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if logs.FilterMessage("predict_request_received").Len() != 1 {
		t.Fatal("expected raw payload to be logged")
	}

	if err := svc.Reject(ctx, nil, nil); err != ErrInvalidPayload {
		t.Fatalf("expected bare ErrInvalidPayload, got %v", err)
	}
}
