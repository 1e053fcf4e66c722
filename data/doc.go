/*
Package data contains the records sampled by the tracker, the device
configuration, and the bounded containers the aggregation module keeps them in.

Records carry a Queued flag. A record with Queued=false means the producer had
nothing to report; [Ring.Push] ignores such records so they never reach the
encoder.
*/
package data
