// Package workforce implements the router tying a set of agents into one
// in-process workforce. It owns the agent registry, resolves recipient
// addresses to inboxes, drives the task lifecycle from the status messages
// flowing through it, and runs the agents' processing loops.
package workforce
