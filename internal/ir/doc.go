// Package ir defines the sensor value model shared by every attrflow package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Sensor values are a sealed set: Null, String, Int, Bool, List, Map
//   - NO float values anywhere, so canonical JSON stays deterministic
//   - Map values are treated as immutable; use With/Without to derive copies
//   - Ordering uses per-sensor logical sequence numbers, never wall clocks
package ir
