// Package store implements an embedded, on-disk, append-only log store: a
// bitcask-style engine that keeps a full key index in memory and appends
// every write to a segment file, reclaiming space through background
// compaction. Modeled on the segment-file/offset-index layout of
// vi88i-kvstash's store package, and the file manager, sharded in-memory
// index and background-merge loop of raciott-FinKV's bitcask package.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when the key has no live entry.
	ErrNotFound = errors.New("store: key not found")
	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("store: closed")
	// ErrKeyTooLarge guards the maximum key size the segment format supports.
	ErrKeyTooLarge = errors.New("store: key exceeds maximum size")
)

const MaxKeySize = 512

// Store is the point get/put/delete/forward-iterate surface the module
// depends on.
type Store interface {
	// Get returns the current value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	// Put writes or overwrites key's value.
	Put(key, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error
	// NewIterator returns a forward iterator over a point-in-time snapshot
	// of live keys, positioned before the first entry.
	NewIterator() Iterator
	// Len reports the current number of live entries.
	Len() int64
	// Close releases every resource acquired by Open, idempotently.
	Close() error
}

// Iterator walks a Store's entries in ascending key order. Callers that
// only need to visit every live entry once (a sweep pass, a purge) don't
// depend on the order, but ascending byte order is the simplest
// deterministic choice and matches what a real LSM-tree iterator hands back.
type Iterator interface {
	SeekToFirst()
	Valid() bool
	Key() []byte
	Value() []byte
	Next()
	Err() error
	Close() error
}

// Options configures a store Engine at Open time. Built with functional
// options the way raciott-FinKV's storage.Options is, so callers only set
// what they mean to override. Engine reads Path, BlockCacheBytes,
// BloomBitsPerKey, VerifyChecksums, TargetFileSizeBytes, MergeInterval and
// MinMergeRatio; WriteBufferBytes, MaxOpenFiles and
// MaxBackgroundCompactions are stored but have no effect on the Engine.
type Options struct {
	Path string

	BlockCacheBytes  int64
	WriteBufferBytes int64
	BloomBitsPerKey  int
	VerifyChecksums  bool

	MaxOpenFiles             int
	MaxBackgroundCompactions int
	TargetFileSizeBytes      int64
	MergeInterval            int64 // seconds; 0 disables background compaction
	MinMergeRatio            float64
}

// Option mutates an Options being built.
type Option func(*Options)

func defaultOptions(path string) Options {
	return Options{
		Path:                     path,
		BlockCacheBytes:          8 * 1024 * 1024,
		WriteBufferBytes:         64 * 1024 * 1024,
		BloomBitsPerKey:          10,
		VerifyChecksums:          false,
		MaxOpenFiles:             1000,
		MaxBackgroundCompactions: 2,
		TargetFileSizeBytes:      64 * 1024 * 1024,
		MergeInterval:            120,
		MinMergeRatio:            0.5,
	}
}

func WithBlockCacheBytes(n int64) Option  { return func(o *Options) { o.BlockCacheBytes = n } }
func WithWriteBufferBytes(n int64) Option { return func(o *Options) { o.WriteBufferBytes = n } }
func WithBloomBitsPerKey(n int) Option    { return func(o *Options) { o.BloomBitsPerKey = n } }
func WithVerifyChecksums(v bool) Option   { return func(o *Options) { o.VerifyChecksums = v } }
func WithMaxOpenFiles(n int) Option       { return func(o *Options) { o.MaxOpenFiles = n } }
func WithMergeInterval(seconds int64) Option {
	return func(o *Options) { o.MergeInterval = seconds }
}

// Open creates or reopens an Engine rooted at path, applying opts over the
// package defaults.
func Open(path string, opts ...Option) (*Engine, error) {
	o := defaultOptions(path)
	for _, opt := range opts {
		opt(&o)
	}
	e, err := openEngine(o)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return e, nil
}
