// Package store persists agent runs. Both stores implement
// agentloop.Snapshotter and can be combined with
// agentloop.MultiSnapshotter.
package store
