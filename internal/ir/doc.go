// Package ir provides the canonical serialization and identity helpers shared
// by the driver's packages.
//
// ir imports nothing internal. Every other internal package may import it.
//
// Key design constraints:
//   - Canonical JSON is the only serialization used for fingerprints
//   - Object keys are ordered by UTF-16 code units, strings are NFC normalized
//   - Numbers keep their literal text (json.Number), never a float round-trip
//   - Fingerprints are domain separated so different artifacts never collide
package ir
