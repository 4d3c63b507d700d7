/*
Package command polls /commands/{device-id}/poll and dispatches the closed
set of remote command actions against the inverter's register map. Dispatch always runs through pkg/faultrecovery so a write that hits a
transient fault gets the same bounded-retry treatment a polling read would.
An unrecognized action or an unparseable parameter fails that one command
without touching the poll loop (a set_power_percentage value outside
[0, 100] is clamped, not rejected). A failure is counted in the
executed/succeeded/failed tally, logged, and posted to
/commands/{device-id}/result like any other outcome.
*/
package command
