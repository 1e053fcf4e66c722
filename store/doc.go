// Package store persists small settings records, such as the device
// configuration, across reboots.
package store
