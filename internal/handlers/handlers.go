package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vishal-chaure/RetinaAI-V2/internal/apperr"
	"github.com/vishal-chaure/RetinaAI-V2/internal/explain"
	"github.com/vishal-chaure/RetinaAI-V2/internal/imaging"
	"github.com/vishal-chaure/RetinaAI-V2/internal/model"
)

const timestampLayout = "2006-01-02 15:04:05"

var (
	errNoImage     = errors.New("No image data provided")
	errInvalidJSON = errors.New("Invalid JSON")
)

// Predictor classifies a preprocessed image tensor and explains the result.
type Predictor interface {
	Predict(ctx context.Context, input []float32) (*model.Result, error)
}

type Options struct {
	Classes      []string
	Workers      int
	MaxBodyBytes int64
	// MaxImagePixels caps width*height of an incoming image before it is
	// decoded.
	MaxImagePixels int
	Timeout        time.Duration
}

type Handler struct {
	predictor Predictor
	renderer  *imaging.Renderer
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

func NewHandler(predictor Predictor, renderer *imaging.Renderer, logger *zap.Logger, opts Options) *Handler {
	return &Handler{
		predictor: predictor,
		renderer:  renderer,
		logger:    logger.Named("http"),
		opts:      opts,
		now:       time.Now,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"classes": h.opts.Classes,
		"workers": h.opts.Workers,
	})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := loggerFrom(r.Context(), h.logger)

	if h.opts.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.fail(w, logger, apperr.Validation("", errInvalidJSON))
		return
	}
	if req.Image == nil {
		h.fail(w, logger, apperr.Validation("", errNoImage))
		return
	}

	ctx := r.Context()
	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := h.process(ctx, *req.Image)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	logger.Info("prediction",
		zap.Int("class", result.PredictionClass),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, result)
}

// process runs decode, inference, rendering and formatting in order; the
// first failure aborts the request.
func (h *Handler) process(ctx context.Context, dataURL string) (*model.PredictionResponse, error) {
	img, _, err := imaging.DecodeDataURL(dataURL, h.opts.MaxImagePixels)
	if err != nil {
		return nil, apperr.Processing("decode image", err)
	}

	display, input := imaging.Preprocess(img)

	res, err := h.predictor.Predict(ctx, input)
	if err != nil {
		return nil, apperr.Processing("predict", err)
	}

	overlay, err := h.renderer.Render(display, res.Saliency)
	if err != nil {
		return nil, apperr.Processing("render overlay", err)
	}

	confidence := float64(res.Confidence)
	return &model.PredictionResponse{
		PredictionClass: res.Class,
		ClassName:       h.className(res.Class),
		Confidence:      confidence,
		Probabilities:   res.Probabilities,
		Explanation:     explain.Format(res.Class, confidence),
		GradCAMImage:    overlay,
		Timestamp:       h.now().Format(timestampLayout),
	}, nil
}

func (h *Handler) className(class int) string {
	if class >= 0 && class < len(h.opts.Classes) {
		return h.opts.Classes[class]
	}
	return ""
}

func (h *Handler) fail(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	if kind == apperr.KindValidation {
		status = http.StatusBadRequest
		logger.Info("rejected request", zap.Stringer("kind", kind), zap.Error(err))
	} else {
		logger.Error("prediction failed", zap.Stringer("kind", kind), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
