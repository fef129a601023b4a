// File: store/store.go
// Package store
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Disk-backed overflow store. A temporary file is split into fixed-size
// regions that are allocated and released like pool buffers.

package store

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/momentics/hioload-nio/api"
)

// DefaultRegionSize is used when Config.RegionSize is zero.
const DefaultRegionSize = 1 << 20

// transferChunk bounds the scratch buffer of non-sendfile transfers.
const transferChunk = 64 << 10

// Config describes a Store.
type Config struct {
	// Dir holds the backing file; empty means os.TempDir.
	Dir        string
	RegionSize int
	// StoreSize caps the backing file in bytes; zero means unbounded.
	StoreSize int64
	Logger    hclog.Logger
}

// Store owns the backing file and its regions. It is not safe for
// concurrent use.
type Store struct {
	file       *os.File
	fd         int
	path       string
	regionSize int64
	maxRegions int
	nextID     int
	free       *queue.Queue
	live       int
	size       atomic.Int64
	scratch    []byte
	log        hclog.Logger
	closed     bool
}

// Open creates the backing temp file.
func Open(cfg Config) (*Store, error) {
	if cfg.RegionSize < 0 || cfg.StoreSize < 0 {
		return nil, fmt.Errorf("%w: negative store sizing", api.ErrInvalidConfig)
	}
	if cfg.RegionSize == 0 {
		cfg.RegionSize = DefaultRegionSize
	}
	if cfg.StoreSize > 0 && cfg.StoreSize < int64(cfg.RegionSize) {
		return nil, fmt.Errorf("%w: store size %d below region size %d",
			api.ErrInvalidConfig, cfg.StoreSize, cfg.RegionSize)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	f, err := os.CreateTemp(cfg.Dir, "hioload-nio-*.store")
	if err != nil {
		return nil, fmt.Errorf("store: create backing file: %w", err)
	}
	s := &Store{
		file:       f,
		fd:         int(f.Fd()),
		path:       f.Name(),
		regionSize: int64(cfg.RegionSize),
		free:       queue.New(),
		log:        logger.Named("store"),
	}
	if cfg.StoreSize > 0 {
		s.maxRegions = int(cfg.StoreSize / int64(cfg.RegionSize))
	}
	s.log.Debug("opened", "path", s.path, "region_size", cfg.RegionSize, "max_regions", s.maxRegions)
	return s, nil
}

// Allocate hands out a drained region, reusing released ones first.
func (s *Store) Allocate() (*Region, error) {
	if s.closed {
		return nil, fmt.Errorf("store: %w", api.ErrClosed)
	}
	var r *Region
	if s.free.Length() > 0 {
		r = s.free.Remove().(*Region)
	} else {
		if s.maxRegions > 0 && s.nextID >= s.maxRegions {
			return nil, api.Wrap(api.ErrCodeStoreExhausted, api.ErrStoreExhausted).
				WithContext("max_regions", s.maxRegions)
		}
		r = &Region{store: s, id: s.nextID, offset: int64(s.nextID) * s.regionSize}
		s.nextID++
	}
	r.allocated = true
	s.live++
	return r, nil
}

// Release returns r to the free list. Unread bytes are discarded.
func (s *Store) Release(r *Region) {
	if r == nil {
		return
	}
	if r.store != s || !r.allocated {
		s.log.Warn("release of foreign or released region ignored", "region", r.id)
		return
	}
	s.size.Add(-r.ReadRemaining())
	r.allocated = false
	r.readIdx, r.writeIdx = 0, 0
	s.live--
	if !s.closed {
		s.free.Add(r)
	}
}

func (s *Store) check(r *Region) error {
	if s.closed {
		return fmt.Errorf("store: %w", api.ErrClosed)
	}
	if r == nil || r.store != s || !r.allocated {
		return api.ErrRegionReleased
	}
	return nil
}

// Write appends up to WriteRemaining bytes of src to r.
func (s *Store) Write(r *Region, src []byte) (int, error) {
	if err := s.check(r); err != nil {
		return 0, err
	}
	n := int(min(int64(len(src)), r.WriteRemaining()))
	if n == 0 {
		return 0, nil
	}
	w, err := s.pwriteFull(src[:n], r.offset+r.writeIdx)
	r.writeIdx += int64(w)
	s.size.Add(int64(w))
	return w, err
}

// Read drains up to ReadRemaining bytes from r into dst. It returns
// io.EOF once r holds no unread bytes.
func (s *Store) Read(r *Region, dst []byte) (int, error) {
	if err := s.check(r); err != nil {
		return 0, err
	}
	if r.ReadRemaining() == 0 {
		return 0, io.EOF
	}
	n := int(min(int64(len(dst)), r.ReadRemaining()))
	got, err := s.preadFull(dst[:n], r.offset+r.readIdx)
	r.readIdx += int64(got)
	s.size.Add(-int64(got))
	return got, err
}

// TransferTo moves up to count unread bytes of r into dst. A zero
// count transfer means dst cannot accept more right now.
func (s *Store) TransferTo(r *Region, count int64, dst io.Writer) (int64, error) {
	if err := s.check(r); err != nil {
		return 0, err
	}
	count = min(count, r.ReadRemaining())
	if count <= 0 {
		return 0, nil
	}
	if fc, ok := dst.(api.FdChannel); ok {
		n, handled, err := s.sendfile(fc.Fd(), r.offset+r.readIdx, count)
		if handled {
			r.readIdx += n
			s.size.Add(-n)
			return n, err
		}
	}
	var total int64
	buf := s.scratchBuf()
	for total < count {
		chunk := buf[:min(int64(len(buf)), count-total)]
		got, err := s.preadFull(chunk, r.offset+r.readIdx)
		if err != nil {
			return total, err
		}
		w, err := dst.Write(chunk[:got])
		r.readIdx += int64(w)
		s.size.Add(-int64(w))
		total += int64(w)
		if err != nil {
			return total, err
		}
		if w < got {
			break
		}
	}
	return total, nil
}

// TransferFrom fills r with up to count bytes read from src. It stops
// early when src has nothing ready and returns io.EOF only if src ended
// before any byte was moved.
func (s *Store) TransferFrom(r *Region, src io.Reader, count int64) (int64, error) {
	if err := s.check(r); err != nil {
		return 0, err
	}
	count = min(count, r.WriteRemaining())
	var total int64
	buf := s.scratchBuf()
	for total < count {
		chunk := buf[:min(int64(len(buf)), count-total)]
		got, rerr := src.Read(chunk)
		if got > 0 {
			w, err := s.pwriteFull(chunk[:got], r.offset+r.writeIdx)
			r.writeIdx += int64(w)
			s.size.Add(int64(w))
			total += int64(w)
			if err != nil {
				return total, err
			}
		}
		if rerr == io.EOF {
			if total == 0 {
				return 0, io.EOF
			}
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
		if got == 0 {
			break
		}
	}
	return total, nil
}

func (s *Store) scratchBuf() []byte {
	if s.scratch == nil {
		s.scratch = make([]byte, min(int64(transferChunk), s.regionSize))
	}
	return s.scratch
}

// Size returns unread bytes held across all allocated regions.
func (s *Store) Size() int64 { return s.size.Load() }

// RegionSize returns the fixed region size.
func (s *Store) RegionSize() int { return int(s.regionSize) }

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Stats is a point-in-time snapshot for probes.
type Stats struct {
	Size        int64 `json:"size"`
	LiveRegions int   `json:"live_regions"`
	FreeRegions int   `json:"free_regions"`
	FileRegions int   `json:"file_regions"`
}

func (s *Store) Stats() Stats {
	return Stats{
		Size:        s.size.Load(),
		LiveRegions: s.live,
		FreeRegions: s.free.Length(),
		FileRegions: s.nextID,
	}
}

// Close truncates and removes the backing file. It is idempotent.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var result *multierror.Error
	if err := s.file.Truncate(0); err != nil {
		result = multierror.Append(result, fmt.Errorf("truncate: %w", err))
	}
	if err := s.file.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close: %w", err))
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, fmt.Errorf("remove: %w", err))
	}
	s.size.Store(0)
	return result.ErrorOrNil()
}
