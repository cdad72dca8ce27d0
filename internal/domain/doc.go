// Package domain defines the core business entities of the processing
// pipeline: jobs, their audio chunks, per-step execution records, and the
// processed records a finished job produces. Entities validate themselves;
// persistence and orchestration live elsewhere.
package domain
