package util

import (
	"fmt"
	"time"
)

// TransferTuning holds copy settings for a location root.
type TransferTuning struct {
	Concurrency int
	BufferSize  int
	Retry       *RetryConfig
	IsNASMode   bool
	Mount       *MountInfo
}

// AutoTuneForRoot inspects a location root and returns transfer settings.
// nasMode, when non-nil, overrides detection.
func AutoTuneForRoot(root string, nasMode *bool, baseConcurrency int) *TransferTuning {
	tuning := &TransferTuning{
		Concurrency: baseConcurrency,
		BufferSize:  128 * 1024,
		Retry:       DefaultRetryConfig(),
	}
	if tuning.Concurrency <= 0 {
		tuning.Concurrency = 4
	}

	if nasMode != nil {
		if *nasMode {
			applyNASTuning(tuning)
			DebugLog("NAS mode: explicitly enabled")
		}
		return tuning
	}

	if root == "" {
		return tuning
	}

	info, err := DetectMount(root)
	if err != nil {
		DebugLog("Failed to detect filesystem for %s: %v", root, err)
		return tuning
	}
	if info.IsNetwork {
		tuning.Mount = info
		applyNASTuning(tuning)
		InfoLog("Network filesystem detected for %s (%s at %s): %s",
			root, info.Protocol, info.MountPath, tuning)
	}
	return tuning
}

func applyNASTuning(t *TransferTuning) {
	t.IsNASMode = true
	if t.Concurrency > 4 {
		t.Concurrency = 4
	}
	t.BufferSize = 256 * 1024
	t.Retry = NASRetryConfig()
}

// String summarises the tuning for logs and the doctor command.
func (t *TransferTuning) String() string {
	if t == nil {
		return "default"
	}
	mode := "local"
	if t.IsNASMode {
		mode = "nas"
	}
	return fmt.Sprintf("mode=%s workers=%d buffer=%dKB retries=%d max-wait=%s",
		mode, t.Concurrency, t.BufferSize/1024, t.Retry.MaxAttempts, t.Retry.MaxWait.Round(time.Millisecond))
}
