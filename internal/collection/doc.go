// Package collection holds the ordered list of images being browsed and the
// per-image state the scheduler and load tasks share.
//
// Every [Entry] carries its own mutex. Getters and setters hold it only for
// an assignment; file reads, decodes and store lookups always happen with
// the lock released. The scheduler never blocks on an entry: it claims work
// with [Entry.TryClaim], which gives up on contention.
//
// An entry goes through a simple cycle:
//
//	idle --TryClaim--> claimed (Pending set, busy)
//	     --TakePending--> running (Pending empty, busy)
//	     --Release--> idle
//
// Because busy stays set while a task runs, a new claim cannot be made for
// an entry whose previous task has not finished, even though that task
// already emptied Pending.
//
// [Collection.Clear] marks each entry disposed under its lock before
// dropping it. A task that still holds a pointer finds its setters
// refusing the write and commits nothing.
package collection
