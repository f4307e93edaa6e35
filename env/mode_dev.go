//go:build !release

package env

// BuildMode is the mode compiled into this binary. Build with -tags release for Production.
const BuildMode = Development
