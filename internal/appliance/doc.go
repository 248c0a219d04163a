// Package appliance models the classroom appliances and the pure functions
// that operate on their state.
//
// The classroom installation exposes four lighting channels, one air
// conditioner and one multimedia unit. Everything in this package is free of
// I/O and locking so the same logic can be shared by direct control requests,
// scheduled rules and historical aggregation:
//
//   - DeviceState: a complete, bounds-checked appliance configuration
//   - ActionIntent: a partial desired change built from tagged options
//   - Merge: current state + intent → new complete state (total function)
//   - ComputePower: state → instantaneous watts (deterministic)
//   - ApplyCommand: semantic commands such as "level_up" or "all off"
//
// # Wire Format
//
// States travel over MQTT in the installation's native JSON shape:
//
//	{
//	  "led": {"led1": 1, "led2": 0, "led3": 0, "led4": 1},
//	  "air_conditioner": {"state": "on", "mode": "cool", "level": 2},
//	  "multimedia": "standby"
//	}
//
// Decoding a state is lenient: missing or out-of-range fields decode as unset
// and are repaired by Normalize. Decoding an intent is strict, because an
// intent is authored by a person and a typo must not silently become a no-op.
package appliance
