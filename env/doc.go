/*
Package env resolves where the backend project lives.

In Development the backend is the "api" directory next to the current working directory, i.e. <parent of cwd>/api,
and its manifest and entry script are used in place.

In Production the backend project root is the app's private data directory. The manifest and entry script ship
read-only inside the resource bundle at <resource dir>/api; the manifest is copied into the data directory during
provisioning and the entry script is run from the bundle.

The mode is fixed at compile time by the "release" build tag. There is no runtime switch.
*/
package env
