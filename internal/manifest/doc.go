// Package manifest loads build manifests written in CUE.
//
// A manifest names the module, its sources as doublestar globs, the
// product to build and the toolchain to build it with:
//
//	module:  "App"
//	sources: ["Sources/**/*.swift"]
//	kind:    "executable"
//	incremental: true
//	toolchain: {
//		frontend:    "/usr/bin/swift-frontend"
//		linker:      "/usr/bin/ld"
//		resourceDir: "/usr/lib/swift"
//	}
//
// The manifest is unified with an embedded schema, so type errors and
// unknown fields are reported with CUE source positions.
package manifest
