// Package embedding holds what the embedding backends share: device selection
// and the EmbeddingUnavailable wrapping. Backends live in subpackages.
package embedding

import (
	"fmt"
	"os"
	"path/filepath"

	"mpkai/internal/domain"
)

const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// SelectDevice resolves "auto" to "cuda" when an NVIDIA device is visible, else "cpu".
// The device affects latency only; backends must return the same vectors on either.
func SelectDevice(pref string) string {
	switch pref {
	case DeviceCPU, DeviceCUDA:
		return pref
	}
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok && (v == "" || v == "-1") {
		return DeviceCPU
	}
	if matches, _ := filepath.Glob("/dev/nvidia[0-9]*"); len(matches) > 0 {
		return DeviceCUDA
	}
	return DeviceCPU
}

// Unavailable wraps a backend failure as domain.ErrEmbeddingUnavailable.
func Unavailable(backend string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingUnavailable, backend, err)
}
