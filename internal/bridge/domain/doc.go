// Package domain defines the core entities and logic for cross-chain
// transfer requests.
//
// The model is centered around a few key concepts:
//
// # Request
//
// A Request is the unit of work for one token transfer between chains. Its
// lifecycle advances monotonically from RequestReceived through
// TokenReceived and TokenMinted to Completed, or to Canceled from any
// non-terminal state. The request id is the sole correlation key binding the
// source-chain lock to the destination-chain mint.
//
// # Signals and Transitions
//
// Signals are the closed set of inputs that can advance a request:
// lock confirmation, mint dispatch, mint confirmation, timeout, and
// unrecoverable failure. Transition is the pure function mapping
// (status, signal) to the next status and any side effect; it performs no
// I/O and never moves a request backward.
//
// # Events and Commands
//
// Events are chain observations normalized at the collaborator boundary
// into tagged variants. Commands are the outbound instructions handed to a
// chain command sink: lock verification on the origin chain and minting on
// the destination chain.
package domain
