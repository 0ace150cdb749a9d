//go:build js && wasm

package lockfile

// probeAlive always reports dead; there is no process management in
// this environment, and a permanently held lock would be worse.
func probeAlive(pid int) bool {
	return false
}
