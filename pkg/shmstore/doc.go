// Package shmstore provides a small persistent key/value map kept in one
// fixed-size shared memory segment.
//
// Values survive across independent process invocations on the same
// machine until the segment is destroyed or the machine reboots. It is
// meant for a handful of small values (counters, flags, short lists), not
// for bulk data: every operation decodes the whole map.
//
// # Basic Usage
//
//	store, err := shmstore.Open(shmstore.Options{Key: "my-app"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	_, err = store.Set("runs", shmstore.Int(42))
//	v, err := store.Get("runs", shmstore.Int(0))
//	n, _ := v.AsInt()
//
// # Values
//
// A [Value] is one of six kinds: string, int, float, bool, array (of
// values) and object (a protobuf message). The kind is part of the stored
// form, so reading returns exactly the kind that was written.
//
// # Concurrency
//
// There is no locking by default. Every mutation is a read-modify-write of
// the whole map, so two processes updating the same segment at once can
// lose an update. Callers that need atomic updates wrap them in
// [Store.WithLock], which takes a cross-process advisory lock:
//
//	err := store.WithLock(time.Second, func() error {
//	    v, err := store.Get("runs", shmstore.Int(0))
//	    if err != nil {
//	        return err
//	    }
//	    n, _ := v.AsInt()
//	    _, err = store.Set("runs", shmstore.Int(n+1))
//	    return err
//	})
//
// # Error Handling
//
// [ErrInvalidState]: the handle was destroyed or closed. Open a new one.
//
// [ErrDecode]: the segment is corrupt. Destroy and rebuild it.
//
// [ErrCapacityExceeded]: the map does not fit. Nothing was written.
//
// [ErrSegment]: the shared memory provider failed. The cause is wrapped.
package shmstore
