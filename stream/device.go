package stream

import (
	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/device"
)

// BindDevice makes a driver for each source of d and binds it as the
// source's acquisition loop.  Every delivered buffer is attached to the
// feature tree so chunk features resolve against the latest frame.
func BindDevice(d *device.Device) ([]*Driver, error) {
	var out []*Driver
	tree := d.Tree()
	for _, ch := range d.Sources() {
		drv := NewDriver(ch)
		drv.OnFrame(func(b *buffer.Buffer) { tree.AttachChunks(b) })
		if err := d.Bind(ch.ID(), drv); err != nil {
			return nil, err
		}
		out = append(out, drv)
	}
	return out, nil
}
