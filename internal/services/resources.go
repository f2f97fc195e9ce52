package services

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/Code4me2/data-compose/internal/platform/logger"
)

// Guard rails for the batch endpoints; a single n8n workflow step can
// otherwise ask for an unbounded slice of the index.
const (
	maxBatchDocuments    = 50
	maxMemoryUsedPercent = 85.0
	maxBatchContentBytes = 50 * 1024 * 1024
)

// Swapped out in tests.
var virtualMemory = mem.VirtualMemory

// checkMemoryPressure rejects new batch work when the host is already
// close to its memory limit. A failed probe is logged and waved
// through; refusing traffic on a broken gauge would be worse.
func checkMemoryPressure(log *logger.Logger) error {
	vm, err := virtualMemory()
	if err != nil {
		if log != nil {
			log.Warn("Memory probe failed; skipping pressure check", "error", err)
		}
		return nil
	}
	if vm.UsedPercent > maxMemoryUsedPercent {
		return exhaustedError(fmt.Errorf(
			"server memory usage too high for batch operation: %.1f%% used (limit %.0f%%)",
			vm.UsedPercent, maxMemoryUsedPercent,
		))
	}
	return nil
}
