package runner

import (
	"sync"
	"time"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

// Metrics tracks statistics about plan runs.
type Metrics struct {
	Runs             int
	RunsCancelled    int
	StepsExecuted    int
	StepsResolved    int
	StepsEmpty       int
	StepsFailed      int
	StepsSkipped     int
	ProductsReturned int
	ProductsFiltered int
	TotalRetries     int
	TotalDuration    time.Duration
	LongestStepTime  time.Duration
	ShortestStepTime time.Duration

	mu sync.Mutex // Protects metrics updates
}

// Copy returns a snapshot without the mutex.
func (m *Metrics) Copy() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Metrics{
		Runs:             m.Runs,
		RunsCancelled:    m.RunsCancelled,
		StepsExecuted:    m.StepsExecuted,
		StepsResolved:    m.StepsResolved,
		StepsEmpty:       m.StepsEmpty,
		StepsFailed:      m.StepsFailed,
		StepsSkipped:     m.StepsSkipped,
		ProductsReturned: m.ProductsReturned,
		ProductsFiltered: m.ProductsFiltered,
		TotalRetries:     m.TotalRetries,
		TotalDuration:    m.TotalDuration,
		LongestStepTime:  m.LongestStepTime,
		ShortestStepTime: m.ShortestStepTime,
	}
}

func (m *Metrics) recordStep(report shopscale.StepReport, filtered int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StepsExecuted++
	m.ProductsFiltered += filtered
	if report.Attempts > 1 {
		m.TotalRetries += report.Attempts - 1
	}
	switch report.Status {
	case shopscale.StepResolved:
		m.StepsResolved++
	case shopscale.StepEmpty:
		m.StepsEmpty++
	case shopscale.StepFailed:
		m.StepsFailed++
	case shopscale.StepSkipped:
		m.StepsSkipped++
		return
	}
	if report.Duration > m.LongestStepTime {
		m.LongestStepTime = report.Duration
	}
	if m.ShortestStepTime == 0 || report.Duration < m.ShortestStepTime {
		m.ShortestStepTime = report.Duration
	}
}

func (m *Metrics) recordRun(products int, took time.Duration, cancelled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Runs++
	m.TotalDuration += took
	if cancelled {
		m.RunsCancelled++
		return
	}
	m.ProductsReturned += products
}
