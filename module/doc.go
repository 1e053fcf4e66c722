// Package module holds the runtime shared by the tracker modules: the
// purge-on-full message queue every module drains in its main loop, the
// liveness registry the supervisor counts shutdown acknowledgments
// against, re-armable timers, and the run group that starts all modules.
package module
