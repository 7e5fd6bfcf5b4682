package pool

// Handle pairs a checked-out instance with the key of the pool it came
// from. The handle is owned by the caller, not the instance: resources stay
// free of pool plumbing, and returning a handle whose pool has since been
// destroyed finalizes the instance instead of erroring.
type Handle struct {
	// Key is the pool the instance belongs to
	Key string
	// Instance is the pooled resource
	Instance any
}
