// Package analysis characterizes a finished run from its samples.
//
//   - [Spectrum]: power spectrum of the control error
//   - [DominantFrequency]: strongest oscillation in the error
//   - [StepResponse]: rise time, overshoot and settling time
//
// All functions take the samples in capture order and assume a uniform
// sample interval, which the sampling buffer guarantees.
package analysis
