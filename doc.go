// Package gpubuf provides typed 2D buffers that live either in host memory
// or in GPU device memory, behind one allocator facade.
//
// # Overview
//
// A renderer keeps per-pixel state (radiance estimates, random seeds,
// display pixels) in buffers that compute kernels read and write. gpubuf
// gives those buffers one shape regardless of where they live:
//
//	dev, err := gpubuf.OpenDevice(gputypes.BackendVulkan)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	estimate := gpubuf.NewBuffer2D[[4]float32](gpubuf.Device, "Running Estimate",
//	    gpubuf.WithAllocator(dev))
//	defer estimate.Close()
//
//	if err := estimate.Resize(gpubuf.Res(1280, 720)); err != nil {
//	    return err
//	}
//
// # Locations
//
// Host storage comes from the Go heap, or from anonymous mappings for large
// blocks, and is addressable through Data, At and Index. Device storage is
// a hal buffer; Go code reaches its contents only through Set, CopyFrom and
// ReadInto, which transfer in whichever direction the locations require.
//
// # Modification Counter
//
// Every Resize, Reset, Free and Set bumps a buffer's counter by exactly one
// (a Resize to the current resolution does nothing). Consumers compare
// counters, or use a Tracker, to skip work when inputs did not change.
//
// # Memory
//
// Allocations are accounted against an optional Budget. A Pool wraps any
// allocator to recycle released storage by size class. Every buffer is
// registered until Close; LiveBuffers lists them for leak hunting.
//
// # Logging
//
// The package is silent by default. SetLogger installs a *slog.Logger.
package gpubuf

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
