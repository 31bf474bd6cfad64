// Package gpuq enumerates the GPU devices visible to a process across
// multiple providers, reconciling the system-wide view of installed devices
// with the process-local view restricted by the *_VISIBLE_DEVICES
// environment variables. A deterministic mock backend is provided for
// testing; backends can be substituted per call or per scope.
package gpuq
