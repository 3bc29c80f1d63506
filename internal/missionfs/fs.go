// Package missionfs manages the on-disk mission log: an MBR partition
// table at block 0, a superblock at the head of the telemetry partition,
// and an append-only sequence of checksummed 512-byte log blocks.
//
// Each log block packs one or more raw frames as u16-length-prefixed
// records; a zero length terminates the block early. The last four bytes
// of every block hold a crc32c over the preceding 508. Blocks are sealed
// once and never rewritten; the superblock write cursor advances only
// after a sealed block has been written and synced, so a crash loses at
// most the open tail block and never the cursor's view of valid data.
package missionfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/CarletonURocketry/ground-station/pkg/log"
)

const (
	// blockPayloadArea is the packable span of a log block; the block CRC
	// occupies the final four bytes.
	blockPayloadArea = BlockSize - 4

	// MaxRecordSize bounds one raw frame record inside a block.
	MaxRecordSize = blockPayloadArea - 2
)

var (
	ErrAlreadyFormatted = errors.New("missionfs: device already holds a mission log")
	ErrLogFull          = errors.New("missionfs: partition full")
	ErrRecordTooLarge   = errors.New("missionfs: record exceeds block capacity")
)

// Metrics receives filesystem observations. The zero implementation used
// when none is supplied discards them.
type Metrics interface {
	FrameAppended()
	BlockSealed()
	BlockSkipped()
}

type noopMetrics struct{}

func (noopMetrics) FrameAppended() {}
func (noopMetrics) BlockSealed()   {}
func (noopMetrics) BlockSkipped()  {}

// FormatOptions controls Format.
type FormatOptions struct {
	// Force overwrites an existing mission log. Format is destructive.
	Force bool
}

// Format writes a fresh partition table and superblock. It fails with
// ErrAlreadyFormatted if the device already carries a valid superblock
// and Force is not set.
func Format(dev BlockDevice, opts FormatOptions) error {
	if dev.BlockCount() <= PartitionStart+1 {
		return fmt.Errorf("missionfs: device too small: %d blocks", dev.BlockCount())
	}
	if !opts.Force {
		buf := make([]byte, BlockSize)
		if err := dev.ReadBlock(PartitionStart, buf); err == nil && hasSuperblock(buf) {
			return ErrAlreadyFormatted
		}
	}
	partBlocks := dev.BlockCount() - PartitionStart
	mbr := encodeMBR([]PartitionEntry{{
		Type:      PartitionType,
		FirstLBA:  PartitionStart,
		NumBlocks: partBlocks,
	}})
	if err := dev.WriteBlock(0, mbr); err != nil {
		return fmt.Errorf("missionfs: write mbr: %w", err)
	}
	sb := newSuperblock(partBlocks)
	if err := dev.WriteBlock(PartitionStart, sb.encode()); err != nil {
		return fmt.Errorf("missionfs: write superblock: %w", err)
	}
	return dev.Sync()
}

// MountOptions carries the optional collaborators of a Session.
type MountOptions struct {
	Logger  log.Logger
	Metrics Metrics
}

// Session is a mounted mission log positioned at the recorded write
// cursor. A session has a single writer; appends are serialized.
type Session struct {
	mu      sync.Mutex
	dev     BlockDevice
	base    uint32 // LBA of the superblock
	sb      Superblock
	tail    []byte
	tailLen int
	logger  log.Logger
	metrics Metrics
}

// Mount locates the telemetry partition, validates the superblock, and
// returns a session. A device without a valid MBR is tried as a bare
// mission image with the superblock at block 0, which is how extracted
// partition dumps look. Structural faults are fatal: a corrupt device is
// never treated as empty.
func Mount(dev BlockDevice, opts MountOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	var base uint32
	buf := make([]byte, BlockSize)
	if err := dev.ReadBlock(0, buf); err != nil {
		return nil, fmt.Errorf("missionfs: read block 0: %w", err)
	}
	part, err := findDataPartition(buf)
	switch {
	case err == nil:
		if part.FirstLBA != PartitionStart {
			return nil, fmt.Errorf("%w: partition starts at %d, want %d", ErrInvalidSuperblock, part.FirstLBA, PartitionStart)
		}
		base = part.FirstLBA
	case errors.Is(err, ErrInvalidMBR):
		// Bare mission image: superblock at block 0.
		base = 0
	default:
		return nil, err
	}

	if err := dev.ReadBlock(base, buf); err != nil {
		return nil, fmt.Errorf("missionfs: read superblock: %w", err)
	}
	sb, err := parseSuperblock(buf)
	if err != nil {
		return nil, err
	}
	if uint64(base)+uint64(sb.PartitionBlocks) > uint64(dev.BlockCount()) {
		return nil, fmt.Errorf("%w: partition of %d blocks exceeds device", ErrInvalidSuperblock, sb.PartitionBlocks)
	}

	logger.Info("mission log mounted",
		log.Uint64("base", uint64(base)),
		log.Uint64("cursor", uint64(sb.WriteCursor)),
		log.Uint64("blocks", uint64(sb.PartitionBlocks)))
	return &Session{
		dev:     dev,
		base:    base,
		sb:      sb,
		tail:    make([]byte, BlockSize),
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Geometry returns a copy of the mounted superblock.
func (s *Session) Geometry() Superblock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sb
}

// Append packs one raw frame into the open tail block, sealing the block
// and durably advancing the write cursor when it fills. The sealed block
// write is confirmed before the cursor moves.
func (s *Session) Append(raw []byte) error {
	if len(raw) > MaxRecordSize {
		return ErrRecordTooLarge
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	need := 2 + len(raw)
	if blockPayloadArea-s.tailLen < need {
		if err := s.sealLocked(); err != nil {
			return err
		}
	}
	binary.LittleEndian.PutUint16(s.tail[s.tailLen:], uint16(len(raw)))
	copy(s.tail[s.tailLen+2:], raw)
	s.tailLen += need
	s.metrics.FrameAppended()
	return nil
}

// Sync seals a partially filled tail block so everything appended so far
// is covered by the write cursor.
func (s *Session) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tailLen == 0 {
		return nil
	}
	return s.sealLocked()
}

// Close seals the tail and flushes the device. The device itself stays
// open; the caller owns it.
func (s *Session) Close() error {
	if err := s.Sync(); err != nil {
		return err
	}
	return s.dev.Sync()
}

// sealLocked writes the open tail block at the cursor, syncs it, then
// persists the advanced cursor. Ordering is the crash-safety contract.
func (s *Session) sealLocked() error {
	if s.sb.WriteCursor >= s.sb.PartitionBlocks {
		return ErrLogFull
	}
	// A zero record length terminates the block; the tail buffer past
	// tailLen is already zero.
	crc := crc32.Checksum(s.tail[:blockPayloadArea], sbTable)
	binary.LittleEndian.PutUint32(s.tail[blockPayloadArea:], crc)

	lba := s.base + s.sb.WriteCursor
	if err := s.dev.WriteBlock(lba, s.tail); err != nil {
		return fmt.Errorf("missionfs: write block %d: %w", lba, err)
	}
	if err := s.dev.Sync(); err != nil {
		return fmt.Errorf("missionfs: sync block %d: %w", lba, err)
	}

	s.sb.WriteCursor++
	if err := s.dev.WriteBlock(s.base, s.sb.encode()); err != nil {
		s.sb.WriteCursor--
		return fmt.Errorf("missionfs: write superblock: %w", err)
	}
	if err := s.dev.Sync(); err != nil {
		s.sb.WriteCursor--
		return fmt.Errorf("missionfs: sync superblock: %w", err)
	}

	for i := range s.tail {
		s.tail[i] = 0
	}
	s.tailLen = 0
	s.metrics.BlockSealed()
	return nil
}

// Iterate replays every raw frame from the start of the log up to the
// write cursor. A block whose checksum does not verify is skipped and
// counted; frames in later intact blocks are still delivered. Each call
// restarts from the beginning.
func (s *Session) Iterate(fn func(raw []byte) error) error {
	s.mu.Lock()
	cursor := s.sb.WriteCursor
	base := s.base
	s.mu.Unlock()

	buf := make([]byte, BlockSize)
	for rel := uint32(1); rel < cursor; rel++ {
		lba := base + rel
		if err := s.dev.ReadBlock(lba, buf); err != nil {
			return fmt.Errorf("missionfs: read block %d: %w", lba, err)
		}
		want := binary.LittleEndian.Uint32(buf[blockPayloadArea:])
		if crc32.Checksum(buf[:blockPayloadArea], sbTable) != want {
			s.logger.Warn("skipping corrupt log block", log.Uint64("lba", uint64(lba)))
			s.metrics.BlockSkipped()
			continue
		}
		if err := iterateBlock(buf, fn); err != nil {
			return err
		}
	}
	return nil
}

func iterateBlock(buf []byte, fn func(raw []byte) error) error {
	pos := 0
	for pos+2 <= blockPayloadArea {
		n := int(binary.LittleEndian.Uint16(buf[pos:]))
		if n == 0 {
			return nil
		}
		if pos+2+n > blockPayloadArea {
			// Cannot happen in a CRC-valid block; bail rather than misread.
			return nil
		}
		if err := fn(buf[pos+2 : pos+2+n]); err != nil {
			return err
		}
		pos += 2 + n
	}
	return nil
}
