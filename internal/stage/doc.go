// Package stage defines the closed set of pipeline stages, their
// state-machine transitions, and the Handler contract stage implementations
// satisfy.
package stage
