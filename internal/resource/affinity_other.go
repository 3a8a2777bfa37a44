//go:build !linux

package resource

import "runtime"

// AvailableCPUs returns the number of CPUs the process may run on.
func AvailableCPUs() int {
	return runtime.NumCPU()
}
