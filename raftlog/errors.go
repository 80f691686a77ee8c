package raftlog

import "fmt"

func errIndexOutOfRange(index uint64) error {
	return fmt.Errorf("raftlog: no entry at index %d", index)
}
