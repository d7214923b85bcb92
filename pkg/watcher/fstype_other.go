//go:build !linux

package watcher

// Only Linux exposes filesystem magic numbers; elsewhere fsnotify is tried
// first and polling takes over if it fails.
func detectFilesystemType(string) FilesystemType {
	return FSTypeUnknown
}
