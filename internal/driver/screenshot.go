// internal/driver/screenshot.go
package driver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
)

// Screenshot captures the current viewport and returns the PNG bytes.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	sid, err := d.session()
	if err != nil {
		return nil, err
	}
	return guarded(d, "capture screenshot", func() ([]byte, error) {
		return d.commands.TakeScreenshot(ctx, sid)
	})
}

// SaveScreenshot captures the current viewport and streams the bytes
// to path. The fetch and the write share a single deadline; a timeout
// mid-write leaves a partial file behind, it is not rolled back.
func (d *Driver) SaveScreenshot(ctx context.Context, path string) error {
	sid, err := d.session()
	if err != nil {
		return err
	}
	_, err = guarded(d, fmt.Sprintf("save screenshot to %q", path), func() (struct{}, error) {
		img, err := d.commands.TakeScreenshot(ctx, sid)
		if err != nil {
			return struct{}{}, err
		}
		f, err := os.Create(path)
		if err != nil {
			return struct{}{}, fmt.Errorf("create %s: %w", path, err)
		}
		if _, err := io.Copy(f, bytes.NewReader(img)); err != nil {
			f.Close()
			return struct{}{}, fmt.Errorf("write %s: %w", path, err)
		}
		return struct{}{}, f.Close()
	})
	return err
}
