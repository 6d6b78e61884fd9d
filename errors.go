package gofat32

import (
	"errors"
)

// These errors may occur while working with a volume.
// All returned errors can be checked with errors.Is against them.
var (
	ErrNotFound            = errors.New("no such file or directory")
	ErrAlreadyOpen         = errors.New("file handle is already open")
	ErrAlreadyExists       = errors.New("file or directory already exists")
	ErrNoFreeClusters      = errors.New("no free clusters left on the volume")
	ErrIllegalParentOfRoot = errors.New("the root directory has no parent")
	ErrPathTimeout         = errors.New("path resolution exceeded the step limit")
	ErrInvalidName         = errors.New("invalid file name")
	ErrIO                  = errors.New("block device transfer failed")

	ErrNoFilesystem   = errors.New("no FAT32 filesystem found")
	ErrInvalidCluster = errors.New("cluster number out of range")
	ErrCorruptChain   = errors.New("cluster chain is corrupt")
	ErrNotDirectory   = errors.New("not a directory")
	ErrIsDirectory    = errors.New("is a directory")
	ErrInvalidDrive   = errors.New("invalid working directory context")
	ErrClosed         = errors.New("file handle is closed")
	ErrNotSupported   = errors.New("operation not supported")
)
