package whisper

import (
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Device identifies where the model runs. It is chosen once per load.
type Device struct {
	Name        string `json:"name"` // "cuda" or "cpu"
	Accelerator bool   `json:"accelerator"`
	Description string `json:"description,omitempty"`
}

// AcceleratorProbe reports whether a GPU is usable at load time.
type AcceleratorProbe func() bool

// CUDAAvailable reports a visible NVIDIA device node, unless
// CUDA_VISIBLE_DEVICES explicitly hides all devices.
func CUDAAvailable() bool {
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		v = strings.TrimSpace(v)
		if v == "" || v == "-1" {
			return false
		}
	}
	_, err := os.Stat("/dev/nvidia0")
	return err == nil
}

// SelectDevice resolves a preference (auto|cuda|cpu) against availability.
// An explicit cuda preference still falls back to cpu when no accelerator exists.
func SelectDevice(pref string, probe AcceleratorProbe) Device {
	accel := pref != "cpu" && probe != nil && probe()
	if accel {
		return Device{Name: "cuda", Accelerator: true, Description: "NVIDIA GPU"}
	}
	return Device{Name: "cpu", Description: cpuDescription()}
}

func cpuDescription() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 || infos[0].ModelName == "" {
		return runtime.GOARCH
	}
	return strings.TrimSpace(infos[0].ModelName)
}
