package model

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

type Options struct {
	// LibraryPath locates the onnxruntime shared library; empty uses the
	// runtime's default lookup.
	LibraryPath string
	// Workers is the number of sessions that can run concurrently.
	Workers int
	// TargetLayer is the convolutional layer whose activations and
	// gradients the model exports for Grad-CAM.
	TargetLayer string
	Logger      *zap.Logger
}

// session owns one AdvancedSession and the tensors bound to it. A session
// is used by one request at a time.
type session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	probs   *ort.Tensor[float32]
	acts    *ort.Tensor[float32]
	grads   *ort.Tensor[float32]
}

func (s *session) destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	for _, t := range []*ort.Tensor[float32]{s.input, s.probs, s.acts, s.grads} {
		if t != nil {
			t.Destroy()
		}
	}
}

type Server struct {
	Metadata Metadata
	layer    string
	height   int
	width    int
	channels int
	sessions []*session
	pool     chan *session
	logger   *zap.Logger
}

// NewServer loads the model once, checks that it exports the probability
// output plus activations and gradients for opts.TargetLayer, and prepares
// opts.Workers sessions.
func NewServer(modelPath string, meta Metadata, opts Options) (*Server, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	s := &Server{
		Metadata: meta,
		layer:    opts.TargetLayer,
		pool:     make(chan *session, opts.Workers),
		logger:   opts.Logger.Named("model"),
	}

	if err := s.load(modelPath, opts.Workers); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Info("model loaded",
		zap.String("path", modelPath),
		zap.String("layer", s.layer),
		zap.Ints("grid", []int{s.height, s.width, s.channels}),
		zap.Int("workers", opts.Workers))
	return s, nil
}

func (s *Server) load(modelPath string, workers int) error {
	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("failed to inspect model: %w", err)
	}

	gradName := s.Metadata.GradientName(s.layer)
	names := make([]string, len(outputs))
	dims := make(map[string][]int64, len(outputs))
	for i, out := range outputs {
		names[i] = out.Name
		dims[out.Name] = out.Dimensions
	}
	if err := checkOutputs(names, s.Metadata.OutputName, s.layer, gradName); err != nil {
		return fmt.Errorf("grad-cam layer %q: %w", s.layer, err)
	}

	actShape, err := concreteShape(dims[s.layer])
	if err != nil {
		return fmt.Errorf("activations of %q: %w", s.layer, err)
	}
	if len(actShape) != 4 || actShape[0] != 1 {
		return fmt.Errorf("activations of %q have shape %v, want [1 h w c]", s.layer, actShape)
	}
	s.height, s.width, s.channels = int(actShape[1]), int(actShape[2]), int(actShape[3])

	numClasses := int64(len(s.Metadata.Classes))
	shapes := []ort.Shape{
		ort.NewShape(1, InputSize, InputSize, Channels),
		ort.NewShape(1, numClasses),
		ort.NewShape(actShape...),
		ort.NewShape(1, numClasses, actShape[1], actShape[2], actShape[3]),
	}

	for i := 0; i < workers; i++ {
		sess, err := s.newSession(modelPath, shapes, gradName)
		if err != nil {
			return fmt.Errorf("session %d: %w", i, err)
		}
		s.sessions = append(s.sessions, sess)
		s.pool <- sess
	}
	return nil
}

func (s *Server) newSession(modelPath string, shapes []ort.Shape, gradName string) (*session, error) {
	sess := &session{}
	tensors := []**ort.Tensor[float32]{&sess.input, &sess.probs, &sess.acts, &sess.grads}
	for i, shape := range shapes {
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			sess.destroy()
			return nil, fmt.Errorf("failed to create tensor %v: %w", shape, err)
		}
		*tensors[i] = t
	}

	var err error
	sess.session, err = ort.NewAdvancedSession(modelPath,
		[]string{s.Metadata.InputName},
		[]string{s.Metadata.OutputName, s.layer, gradName},
		[]ort.ArbitraryTensor{sess.input},
		[]ort.ArbitraryTensor{sess.probs, sess.acts, sess.grads},
		nil)
	if err != nil {
		sess.destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return sess, nil
}

// Workers is the number of concurrent forward passes the server allows.
func (s *Server) Workers() int {
	return cap(s.pool)
}

// Predict runs one forward pass on a preprocessed input tensor and computes
// the Grad-CAM map of the predicted class. It waits for a free session
// until ctx is done.
func (s *Server) Predict(ctx context.Context, input []float32) (*Result, error) {
	if want := InputSize * InputSize * Channels; len(input) != want {
		return nil, fmt.Errorf("expected %d input values, got %d", want, len(input))
	}

	var sess *session
	select {
	case sess = <-s.pool:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for inference session: %w", ctx.Err())
	}
	defer func() { s.pool <- sess }()

	copy(sess.input.GetData(), input)

	if err := sess.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	probs := append([]float32(nil), sess.probs.GetData()...)
	if err := checkProbabilities(probs); err != nil {
		return nil, err
	}
	class := argmax(probs)

	per := s.height * s.width * s.channels
	grads := sess.grads.GetData()[class*per : (class+1)*per]
	cam := gradCAM(sess.acts.GetData(), grads, s.height, s.width, s.channels)

	return &Result{
		Class:         class,
		Confidence:    probs[class],
		Probabilities: probs,
		Saliency: Saliency{
			Width:  s.width,
			Height: s.height,
			Values: cam,
		},
	}, nil
}

// Close releases every session and the ONNX environment. It must not be
// called while requests are in flight.
func (s *Server) Close() {
	for _, sess := range s.sessions {
		sess.destroy()
	}
	s.sessions = nil
	if err := ort.DestroyEnvironment(); err != nil {
		s.logger.Warn("failed to destroy ONNX environment", zap.Error(err))
	}
}
