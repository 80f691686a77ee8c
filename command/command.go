// Package command defines the client request envelope carried inside
// a replicated log entry's payload.
//
// floyd serializes this envelope with protobuf (command.pb); this
// module has no protobuf toolchain in its dependency pack, so the
// envelope is gob-encoded instead — same role, different wire codec.
package command

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Kind identifies which operation a Command carries.
type Kind uint8

const (
	Write Kind = iota
	Delete
	Read
	ReadAll
	TryLock
	UnLock
	DeleteUser
)

func (k Kind) String() string {
	switch k {
	case Write:
		return "Write"
	case Delete:
		return "Delete"
	case Read:
		return "Read"
	case ReadAll:
		return "ReadAll"
	case TryLock:
		return "TryLock"
	case UnLock:
		return "UnLock"
	case DeleteUser:
		return "DeleteUser"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Command is one client request, gob-encoded into a raft Entry's
// Payload by Replicate and decoded by the Apply Engine.
//
// (floyd command::Command)
type Command struct {
	Kind Kind

	// Key/Value carry Write/Delete/Read/TryLock/UnLock arguments.
	Key   string
	Value string

	// IP/Port identify the session for DeleteUser (floyd
	// command::Command_User): every lock held by this (ip, port) pair
	// is released.
	IP   string
	Port int
}

// Encode gob-serializes cmd for storage as an Entry payload.
func Encode(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("command: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(payload []byte) (Command, error) {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("command: decode: %w", err)
	}
	return cmd, nil
}
