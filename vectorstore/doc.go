// Package vectorstore defines the storage abstraction for embedded
// chunks. The badger subpackage provides the embedded implementation;
// remote engines plug in through the same Store interface.
package vectorstore
