// Package workers determines worker pool sizes from the available CPUs.
//
// It uses runtime.GOMAXPROCS rather than runtime.NumCPU so that container
// CPU limits are respected (Go 1.19+ sets GOMAXPROCS from cgroup limits).
// The GENERATOR_WORKERS environment variable overrides the calculation,
// which is useful when tuning a specific deployment.
//
// Background artifact generation uses ForBackground, which intentionally
// sizes the pool at half the available CPUs so the UI-facing request path
// always has headroom.
package workers
