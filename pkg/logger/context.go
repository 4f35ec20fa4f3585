package logger

// WithJob returns a logger bound to a job ID. Worker code uses this so every
// line emitted while a job is being processed carries the job identity.
func WithJob(component, jobID string) *Logger {
	return WithComponent(component).WithField("job_id", jobID)
}

// WithChunk returns a job logger additionally bound to a chunk index.
func WithChunk(component, jobID string, chunkIndex int) *Logger {
	return WithJob(component, jobID).WithField("chunk_index", chunkIndex)
}
