package missionfs

import (
	"encoding/binary"
	"errors"
)

// PartitionStart is the LBA of the telemetry data partition. The flight
// computer formats cards with the partition fixed at block 2048 so the
// first megabyte stays clear of the log.
const PartitionStart = 2048

// PartitionType is the MBR partition type byte claimed by the telemetry
// log partition.
const PartitionType = 0x89

const (
	mbrEntryOffset = 446
	mbrEntrySize   = 16
	mbrEntryCount  = 4
)

var (
	ErrInvalidMBR      = errors.New("missionfs: invalid MBR")
	ErrNoDataPartition = errors.New("missionfs: no telemetry partition in MBR")
)

// PartitionEntry is one decoded MBR partition table slot.
type PartitionEntry struct {
	Bootable  bool
	Type      byte
	FirstLBA  uint32
	NumBlocks uint32
}

func (p PartitionEntry) valid() bool { return p.Type != 0 }

// parseMBR decodes the partition table from block 0. Only LBA fields are
// interpreted; CHS addresses are legacy noise.
func parseMBR(block []byte) ([]PartitionEntry, error) {
	if len(block) != BlockSize || block[510] != 0x55 || block[511] != 0xAA {
		return nil, ErrInvalidMBR
	}
	var parts []PartitionEntry
	for i := 0; i < mbrEntryCount; i++ {
		e := block[mbrEntryOffset+i*mbrEntrySize:]
		p := PartitionEntry{
			Bootable:  e[0]&0x80 != 0,
			Type:      e[4],
			FirstLBA:  binary.LittleEndian.Uint32(e[8:12]),
			NumBlocks: binary.LittleEndian.Uint32(e[12:16]),
		}
		if (e[0]&^byte(0x80)) == 0 && p.valid() {
			parts = append(parts, p)
		}
	}
	return parts, nil
}

// findDataPartition returns the single recognized telemetry partition.
// All other MBR content is ignored.
func findDataPartition(block []byte) (PartitionEntry, error) {
	parts, err := parseMBR(block)
	if err != nil {
		return PartitionEntry{}, err
	}
	for _, p := range parts {
		if p.Type == PartitionType {
			return p, nil
		}
	}
	return PartitionEntry{}, ErrNoDataPartition
}

// encodeMBR builds a block-0 image holding the given partitions.
func encodeMBR(parts []PartitionEntry) []byte {
	block := make([]byte, BlockSize)
	for i, p := range parts {
		if i >= mbrEntryCount {
			break
		}
		e := block[mbrEntryOffset+i*mbrEntrySize:]
		if p.Bootable {
			e[0] = 0x80
		}
		e[4] = p.Type
		binary.LittleEndian.PutUint32(e[8:12], p.FirstLBA)
		binary.LittleEndian.PutUint32(e[12:16], p.NumBlocks)
	}
	block[510] = 0x55
	block[511] = 0xAA
	return block
}
