// Package forecast implements the sales prediction operation: payload
// validation followed by a single inference call on a read-only model.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"salesforecast/logging"
	"salesforecast/ml"
)

// DefaultFeatures is the number of monthly sales figures a request carries.
const DefaultFeatures = 12

type Config struct {
	Features int
	Logger   *zap.Logger
	// Recorder is optional. Record failures are logged and never change the
	// outcome of Predict.
	Recorder Recorder
}

// Result 预测结果, one value per input row.
type Result struct {
	Prediction []float64 `json:"prediction"`
}

// Entry describes one handled Predict call.
type Entry struct {
	RequestID   string
	ProductName string
	Payload     []byte
	Prediction  []float64
	ErrorKind   string
	Error       string
	Duration    time.Duration
	CreatedAt   time.Time
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

var errNonFinitePrediction = errors.New("model produced a non-finite prediction")

type Service struct {
	model    ml.Regressor
	features int
	logger   *zap.Logger
	recorder Recorder
}

// NewService wraps a loaded model. The model must expect exactly
// cfg.Features inputs.
func NewService(model ml.Regressor, cfg Config) (*Service, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	features := cfg.Features
	if features <= 0 {
		features = DefaultFeatures
	}
	if model.NumFeatures() != features {
		return nil, fmt.Errorf("model expects %d features, service configured for %d", model.NumFeatures(), features)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		model:    model,
		features: features,
		logger:   logger,
		recorder: cfg.Recorder,
	}, nil
}

func (s *Service) Features() int {
	return s.features
}

// Predict validates body and runs inference on it as a single row.
// Errors are one of the kinds reported by Kind.
func (s *Service) Predict(ctx context.Context, body []byte) (Result, error) {
	start := time.Now()
	logger := logging.FromContext(ctx, s.logger)
	logger.Debug("predict_request_received", zap.ByteString("payload", body))

	result, productName, err := s.predict(body)
	s.finish(ctx, logger, start, body, productName, result, err)
	return result, err
}

// Reject accounts for a request the transport refused before its body could
// be evaluated. body holds whatever was read, possibly nothing. The returned
// error always has kind KindInvalidPayload.
func (s *Service) Reject(ctx context.Context, body []byte, cause error) error {
	start := time.Now()
	logger := logging.FromContext(ctx, s.logger)
	logger.Debug("predict_request_received", zap.ByteString("payload", body))

	err := ErrInvalidPayload
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidPayload, cause)
	}
	s.finish(ctx, logger, start, body, "", Result{}, err)
	return err
}

func (s *Service) finish(ctx context.Context, logger *zap.Logger, start time.Time, body []byte, productName string, result Result, err error) {
	duration := time.Since(start)

	if err != nil {
		logger.Info("predict_request_rejected",
			zap.String("kind", Kind(err)),
			zap.String("product_name", productName),
			zap.Error(err),
		)
	} else {
		logger.Debug("predict_request_done",
			zap.String("product_name", productName),
			zap.Float64s("prediction", result.Prediction),
			zap.Duration("duration", duration),
		)
	}

	if s.recorder == nil {
		return
	}
	entry := Entry{
		RequestID:   logging.RequestID(ctx),
		ProductName: productName,
		Payload:     body,
		Prediction:  result.Prediction,
		Duration:    duration,
		CreatedAt:   start,
	}
	if err != nil {
		entry.ErrorKind = Kind(err)
		entry.Error = Message(err)
	}
	if recErr := s.recorder.Record(ctx, entry); recErr != nil {
		logger.Warn("prediction_journal_failed", zap.Error(recErr))
	}
}

func (s *Service) predict(body []byte) (Result, string, error) {
	p, err := decodePayload(body)
	if err != nil {
		return Result{}, "", err
	}
	productName := p.productName()

	elements, err := p.salesData()
	if err != nil {
		return Result{}, productName, err
	}
	if len(elements) != s.features {
		return Result{}, productName, &ArityError{Expected: s.features, Actual: len(elements)}
	}

	features, err := toFeatures(elements)
	if err != nil {
		return Result{}, productName, &InferenceError{Err: err}
	}
	prediction, err := s.model.PredictRows([][]float64{features})
	if err != nil {
		return Result{}, productName, &InferenceError{Err: err}
	}
	for _, v := range prediction {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, productName, &InferenceError{Err: errNonFinitePrediction}
		}
	}
	return Result{Prediction: prediction}, productName, nil
}
