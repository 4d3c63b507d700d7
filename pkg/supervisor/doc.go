// Package supervisor schedules the device's cooperative tasks — sensor
// polling, compression, upload, command and config polling, statistics,
// power reporting, firmware checks, and the watchdog — each on its own
// ticker, and tracks deadline misses through a DeadlineMonitor that
// tells transient network trouble apart from a systemic failure needing
// a recovery reboot.
//
// Tasks are never preempted mid-tick: a Task whose Run exceeds its
// Deadline is reported as a miss once it returns, not interrupted.
// SuspendAll/ResumeAll give the firmware update engine its one
// synchronization point, draining every in-flight tick before an image
// is applied.
package supervisor
