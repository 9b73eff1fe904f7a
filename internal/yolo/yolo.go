package yolo

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/urbancanopy/treedetect-go/internal/conf"
	"github.com/urbancanopy/treedetect-go/internal/errors"
	"github.com/urbancanopy/treedetect-go/internal/logging"
)

// Detector holds the TFLite interpreter and class labels for the
// tree-detection model. Invoke is serialized with a mutex; the TFLite
// interpreter is not safe for concurrent invocation.
type Detector struct {
	interpreter *tflite.Interpreter
	model       *tflite.Model
	settings    *conf.Settings
	labels      []string
	inputSize   int
	mu          sync.Mutex
	log         *slog.Logger
}

// New loads the model file and labels referenced by settings and prepares an
// interpreter. The model is read once; reuse the Detector for all requests.
func New(settings *conf.Settings) (*Detector, error) {
	d := &Detector{
		settings:  settings,
		inputSize: settings.Model.InputSize,
		log:       logging.ForService("yolo"),
	}

	labels, err := loadLabels(settings.Model.LabelPath)
	if err != nil {
		return nil, err
	}
	d.labels = labels

	if err := d.initializeInterpreter(); err != nil {
		return nil, err
	}

	if err := d.validateTensors(); err != nil {
		return nil, err
	}

	d.log.Info("model loaded",
		"path", settings.Model.Path,
		"version", settings.Model.Version,
		"input_size", d.inputSize,
		"classes", len(d.labels))

	return d, nil
}

// ModelVersion returns the version string reported with predictions.
func (d *Detector) ModelVersion() string {
	return d.settings.Model.Version
}

// Labels returns the class labels in model index order.
func (d *Detector) Labels() []string {
	return d.labels
}

func (d *Detector) initializeInterpreter() error {
	start := time.Now()

	modelData, err := os.ReadFile(d.settings.Model.Path)
	if err != nil {
		return errors.New(err).
			Component("yolo").
			Category(errors.CategoryModelLoad).
			ModelContext(d.settings.Model.Path, d.settings.Model.Version).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return errors.Newf("cannot load TensorFlow Lite model").
			Component("yolo").
			Category(errors.CategoryModelInit).
			ModelContext(d.settings.Model.Path, d.settings.Model.Version).
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}
	d.model = model

	options := tflite.NewInterpreterOptions()
	threads := d.settings.Model.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if d.settings.Model.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(threads)})
		if delegate == nil {
			d.log.Warn("failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	d.interpreter = tflite.NewInterpreter(model, options)
	if d.interpreter == nil {
		return errors.Newf("cannot create TensorFlow Lite interpreter").
			Component("yolo").
			Category(errors.CategoryModelInit).
			ModelContext(d.settings.Model.Path, d.settings.Model.Version).
			Build()
	}

	if status := d.interpreter.AllocateTensors(); status != tflite.OK {
		return errors.Newf("tensor allocation failed").
			Component("yolo").
			Category(errors.CategoryModelInit).
			ModelContext(d.settings.Model.Path, d.settings.Model.Version).
			Timing("model-init", time.Since(start)).
			Build()
	}

	return nil
}

// validateTensors checks that the model's input square and output class count
// match the configured input size and loaded label file.
func (d *Detector) validateTensors() error {
	input := d.interpreter.GetInputTensor(0)
	if input == nil {
		return errors.Newf("model has no input tensor").
			Component("yolo").
			Category(errors.CategoryValidation).
			Build()
	}
	if input.NumDims() == 4 {
		h, w := input.Dim(1), input.Dim(2)
		if h != d.inputSize || w != d.inputSize {
			return errors.Newf("model input is %dx%d but configured input size is %d", w, h, d.inputSize).
				Component("yolo").
				Category(errors.CategoryValidation).
				Build()
		}
	}

	output := d.interpreter.GetOutputTensor(0)
	if output == nil {
		return errors.Newf("model has no output tensor").
			Component("yolo").
			Category(errors.CategoryValidation).
			Build()
	}
	stride := output.Dim(output.NumDims() - 1)
	if stride != 5+len(d.labels) {
		return errors.New(fmt.Errorf("model emits %d values per box, label file implies %d", stride, 5+len(d.labels))).
			Component("yolo").
			Category(errors.CategoryValidation).
			Context("labels", len(d.labels)).
			Build()
	}

	return nil
}
