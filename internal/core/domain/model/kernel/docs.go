// Package kernel holds the domain primitives shared by the order model.
//
// Currently this is UUID, the identifier value object used for orders and
// outbox events. Primitives here are immutable values and safe for concurrent use.
package kernel
