package missionfs

import (
	"errors"
	"fmt"
	"os"
)

// BlockSize is the sector size of every supported device. The avionics
// logger writes 512-byte SD card sectors and the format is defined in
// those terms.
const BlockSize = 512

// BlockDevice is sector-addressed storage: an SD card device node or a
// raw image copied off one.
type BlockDevice interface {
	// ReadBlock fills buf (exactly BlockSize bytes) from the given LBA.
	ReadBlock(lba uint32, buf []byte) error
	// WriteBlock writes buf (exactly BlockSize bytes) at the given LBA.
	WriteBlock(lba uint32, buf []byte) error
	// BlockCount returns the device capacity in blocks.
	BlockCount() uint32
	// Sync flushes written blocks to stable storage.
	Sync() error
	Close() error
}

var errShortBuffer = errors.New("missionfs: buffer must be exactly one block")

// FileDevice implements BlockDevice over a plain file or device node.
type FileDevice struct {
	f      *os.File
	blocks uint32
}

// OpenFile opens an existing image or device node. The file size must be
// a whole number of blocks.
func OpenFile(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size()%BlockSize != 0 {
		f.Close()
		return nil, fmt.Errorf("missionfs: %s: size %d is not block aligned", path, info.Size())
	}
	return &FileDevice{f: f, blocks: uint32(info.Size() / BlockSize)}, nil
}

// CreateFile creates a zero-filled image with the given capacity.
func CreateFile(path string, blocks uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(blocks) * BlockSize); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, blocks: blocks}, nil
}

func (d *FileDevice) ReadBlock(lba uint32, buf []byte) error {
	if len(buf) != BlockSize {
		return errShortBuffer
	}
	if lba >= d.blocks {
		return fmt.Errorf("missionfs: read past device end: lba %d of %d", lba, d.blocks)
	}
	_, err := d.f.ReadAt(buf, int64(lba)*BlockSize)
	return err
}

func (d *FileDevice) WriteBlock(lba uint32, buf []byte) error {
	if len(buf) != BlockSize {
		return errShortBuffer
	}
	if lba >= d.blocks {
		return fmt.Errorf("missionfs: write past device end: lba %d of %d", lba, d.blocks)
	}
	_, err := d.f.WriteAt(buf, int64(lba)*BlockSize)
	return err
}

func (d *FileDevice) BlockCount() uint32 { return d.blocks }

func (d *FileDevice) Sync() error { return d.f.Sync() }

func (d *FileDevice) Close() error { return d.f.Close() }
