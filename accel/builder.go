package accel

import (
	"log/slog"

	"github.com/sarchlab/nnaccel/accel/addressing"
	"github.com/sarchlab/nnaccel/accel/compute"
	"github.com/sarchlab/nnaccel/accel/memory"
	"github.com/sarchlab/nnaccel/accel/pingpong"
	"github.com/sarchlab/nnaccel/accel/sched"
	"github.com/sarchlab/nnaccel/sim/timing"
)

// Sizes of the memories around the scheduler, in words.
const (
	WeightStoreWords  = max(addressing.ConvWeightSpace, addressing.MatmulWeightSpace)
	FeatureStoreWords = max(addressing.ConvFeatureSpace, addressing.MatmulFeatureSpace)
	ResultStoreWords  = addressing.ResultSpace

	WeightStagingWords = addressing.MatmulL2WeightWords
	ActStagingWords    = addressing.HiddenSpace
)

// Builder can build accelerators.
type Builder struct {
	engine timing.Engine
	freq   timing.Freq
	dims   sched.Dims
	array  compute.Array
	post   compute.PostProcessor
	logger *slog.Logger

	weightStorage  *memory.Storage
	featureStorage *memory.Storage
	resultStorage  *memory.Storage
}

// MakeBuilder returns a Builder with the full-size workload, a 1 GHz clock,
// the checksum compute model, and no post-processing.
func MakeBuilder() Builder {
	return Builder{
		freq: 1 * timing.GHz,
		dims: sched.DefaultDims(),
	}
}

// WithEngine sets the engine that drives the accelerator.
func (b Builder) WithEngine(engine timing.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the clock frequency.
func (b Builder) WithFreq(freq timing.Freq) Builder {
	b.freq = freq
	return b
}

// WithDims sets the loop bounds of both workloads.
func (b Builder) WithDims(dims sched.Dims) Builder {
	b.dims = dims
	return b
}

// WithArray sets the compute array.
func (b Builder) WithArray(array compute.Array) Builder {
	b.array = array
	return b
}

// WithPostProcessor sets the post-processing applied on write-back.
func (b Builder) WithPostProcessor(post compute.PostProcessor) Builder {
	b.post = post
	return b
}

// WithLogger sets the logger used for session events.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// WithWeightStorage makes the accelerator use an existing weight store.
func (b Builder) WithWeightStorage(s *memory.Storage) Builder {
	b.weightStorage = s
	return b
}

// WithFeatureStorage makes the accelerator use an existing feature store.
func (b Builder) WithFeatureStorage(s *memory.Storage) Builder {
	b.featureStorage = s
	return b
}

// WithResultStorage makes the accelerator use an existing result store.
func (b Builder) WithResultStorage(s *memory.Storage) Builder {
	b.resultStorage = s
	return b
}

func storageOrNew(s *memory.Storage, words int) *memory.Storage {
	if s != nil {
		return s
	}

	return memory.NewStorage(words)
}

// Build creates an accelerator with the given name.
func (b Builder) Build(name string) *Accelerator {
	a := &Accelerator{
		ctrl:   sched.NewController(b.dims),
		array:  b.array,
		post:   b.post,
		logger: b.logger,
	}

	a.TickingComponent = timing.NewTickingComponent(name, b.engine, b.freq, a)

	if a.array == nil {
		a.array = compute.NewChecksumArray()
	}

	if a.post == nil {
		a.post = compute.Passthrough{}
	}

	if a.logger == nil {
		a.logger = slog.Default()
	}

	a.weightStore = memory.NewSRAM(name+".WeightStore",
		storageOrNew(b.weightStorage, WeightStoreWords))
	a.featureStore = memory.NewSRAM(name+".FeatureStore",
		storageOrNew(b.featureStorage, FeatureStoreWords))
	a.resultStore = memory.NewSRAM(name+".ResultStore",
		storageOrNew(b.resultStorage, ResultStoreWords))
	a.featureMux = memory.NewFeatureMux(name+".FeatureMux",
		a.featureStore, a.resultStore)

	a.weightBuf = pingpong.NewDoubleBuffer(name+".WeightBuf",
		WeightStagingWords)
	a.actBuf = pingpong.NewDoubleBuffer(name+".ActBuf", ActStagingWords)

	return a
}
