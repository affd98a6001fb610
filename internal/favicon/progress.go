package favicon

import "time"

// Step names a pipeline stage.
type Step string

const (
	StepValidating   Step = "validating"
	StepDecoding     Step = "decoding"
	StepRasterizing  Step = "rasterizing"
	StepEncoding     Step = "encoding"
	StepSynthesizing Step = "synthesizing"
	StepPackaging    Step = "packaging"
	StepUploading    Step = "uploading"
	StepDone         Step = "done"
)

// Progress is an immutable snapshot of a single-image run.
type Progress struct {
	Step      Step    `json:"step"`
	SizeKey   string  `json:"sizeKey,omitempty"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// NewProgress computes Percent from completed/total.
func NewProgress(step Step, sizeKey string, completed, total int) Progress {
	p := Progress{Step: step, SizeKey: sizeKey, Completed: completed, Total: total}
	if total > 0 {
		p.Percent = float64(completed) * 100 / float64(total)
	}
	if step == StepDone {
		p.Percent = 100
	}
	return p
}

// ProgressFunc receives snapshots. It may be nil.
type ProgressFunc func(Progress)

// BatchProgress is an immutable snapshot of a batch run.
type BatchProgress struct {
	BatchID        string        `json:"batchId"`
	State          BatchState    `json:"state"`
	FilesCompleted int           `json:"filesCompleted"`
	TotalFiles     int           `json:"totalFiles"`
	CurrentFile    string        `json:"currentFile,omitempty"`
	Current        Progress      `json:"current"`
	Percent        float64       `json:"percent"`
	Elapsed        time.Duration `json:"elapsed"`
	ETA            time.Duration `json:"eta"`
}

// BatchProgressFunc receives batch snapshots. Calls are serialized.
type BatchProgressFunc func(BatchProgress)
