// Package raftlog implements the persistent replicated log: a
// segmented, append-only on-disk structure with a double-buffered
// manifest holding metadata (current term, voted-for, apply index).
//
// On-disk layout:
//
//	<path>/manifest           double-buffered fixed record, CRC-checked
//	<path>/log.000001         segment file (header + framed entries)
//	<path>/log.000002         ...
//
// (floyd floyd/src/file_log.h: Log, Manifest, LogFile, Iterator)
package raftlog
