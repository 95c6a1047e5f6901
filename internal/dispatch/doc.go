// Package dispatch turns inbound request frames into correlated replies.
//
// Every message goes through decode, resolve, guard and invoke, and every
// failure becomes a reply. Errors are converted to wire strings here and
// nowhere else.
package dispatch
