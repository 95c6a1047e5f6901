// Package binding keeps clients in sync with server-side entities.
//
// A Spec registers a model against a Set. Registration adds a "<model>.list"
// channel and routes create, update and delete messages arriving on the
// binding's stream channel. Every mutation is serialized once and broadcast as
// {action, pk, data, model} to the groups chosen by the spec's group rule.
package binding
