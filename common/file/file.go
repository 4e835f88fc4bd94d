// Package file holds small durable-write helpers shared by anything that
// persists state to the storage root (nvram autosave).
package file

import "os"

// WriteFileWithSync writes data to path and fsyncs before closing, so a
// power loss right after the write can't leave a truncated or empty file
// behind.
func WriteFileWithSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err = f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
