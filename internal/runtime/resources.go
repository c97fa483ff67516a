package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const cpuMetric = "/cpu/classes/total:cpu-seconds"

// ResourceUsage is a coarse view of the bridge process.
type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	HeapBytes   uint64  `json:"heap_bytes"`
	Goroutines  int     `json:"goroutines"`
	NumCPU      int     `json:"num_cpu"`
	SampledOver string  `json:"sampled_over,omitempty"`
}

// resourceSampler derives CPU utilisation from the delta between two reads of
// the runtime CPU clock, so the first sample always reports zero.
type resourceSampler struct {
	mu       sync.Mutex
	samples  []metrics.Sample
	lastCPU  float64
	lastRead time.Time
	numCPU   int
	now      func() time.Time
}

func newResourceSampler() *resourceSampler {
	return &resourceSampler{
		samples: []metrics.Sample{{Name: cpuMetric}},
		numCPU:  runtime.NumCPU(),
		now:     time.Now,
	}
}

func (r *resourceSampler) Sample() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		r.samples = []metrics.Sample{{Name: cpuMetric}}
	}
	if r.now == nil {
		r.now = time.Now
	}

	metrics.Read(r.samples)
	value := r.samples[0].Value
	now := r.now()

	usage := ResourceUsage{
		Goroutines: runtime.NumGoroutine(),
		NumCPU:     r.numCPU,
	}

	if value.Kind() == metrics.KindFloat64 {
		cpu := value.Float64()
		if !r.lastRead.IsZero() {
			wall := now.Sub(r.lastRead)
			if wall > 0 && r.numCPU > 0 {
				usage.CPUPercent = (cpu - r.lastCPU) / wall.Seconds() / float64(r.numCPU) * 100
				usage.SampledOver = wall.Round(time.Millisecond).String()
			}
		}
		r.lastCPU = cpu
	}
	r.lastRead = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	usage.HeapBytes = mem.HeapAlloc

	return usage
}
