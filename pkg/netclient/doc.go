/*
Package netclient provides the single shared HTTP capability every outbound
task (upload, command poll, config poll, firmware check) exchanges over.
The device has one network interface; Client serializes access to it with a
context-aware semaphore instead of a plain sync.Mutex, so a task that is
willing to give up waiting honors its own deadline rather than blocking
forever behind a slower task.
*/
package netclient
