// Package control publishes appliance commands to the classroom firmware.
//
// Every command is a complete DeviceState. The firmware applies it as a
// whole, so partial requests (intents and semantic commands) are merged
// against the latest observed state before publishing. Scheduled rule
// firings arrive through Dispatch with their provenance attached.
package control
