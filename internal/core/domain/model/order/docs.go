// Package order holds the Order aggregate and its status state machine.
//
// The package includes:
//   - Order: the aggregate root (identity, owner, product, pricing, status, timestamps)
//   - Status: a closed enumeration with a static transition table
//   - CreatedEvent and StatusUpdatedEvent: payloads handed to the event publisher
//
// Key business rules:
//   - New orders always start as Pending
//   - Pending may move to Shipping or Cancelled, Shipping to Delivered or Cancelled
//   - Delivered and Cancelled are terminal
//   - A rejected transition leaves the order unchanged and yields *InvalidTransitionError
//   - Total price is unit price times quantity
package order
