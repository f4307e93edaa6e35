//go:build release

package env

// BuildMode is the mode compiled into this binary.
const BuildMode = Production
