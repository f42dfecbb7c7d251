// Package notify carries single-use tokens (email verification, password
// reset, magic login) from auth flows to whatever delivers them.
//
// Flows enqueue a [Message] and return; a [Dispatcher] forwards it to a
// [Sender] on a background goroutine. Delivery failures are logged and
// counted but never surface to the flow that produced the token.
package notify
