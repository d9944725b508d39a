// Package kvstore is a Badger-backed durable queue for devices where an
// embedded key-value store is preferred over SQLite.
//
// Key layout:
//
//	mq/<8-byte big-endian id>  msgpack-encoded mutation.Record
//	lease/<name>               msgpack-encoded lease
//	seq/mq                     Badger sequence for record ids
//
// Big-endian ids make prefix iteration yield records in ascending id order,
// which is the queue's FIFO order. Ids come from a persistent sequence and
// are never reused, even after the highest record is deleted.
package kvstore
