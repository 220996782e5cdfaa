// Package task manages background job queuing, processing, and lifecycle.
// It provides the bounded submit queue, the fixed worker pool that drains it,
// the image generation executor that drives a task from claim to a terminal
// status, and recovery for work stranded by a crash or restart.
package task
