// Command floydctl is a thin CLI client for a floyd server, issuing
// one Client API call per invocation.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cy99/floyd/client"
)

func main() {
	var (
		address = flag.String("address", "localhost:8080", "floyd server address")
		cmd     = flag.String("command", "", "write | delete | read | dirty-read | read-all | leader | status")
		key     = flag.String("key", "", "key for write/delete/read/dirty-read")
		value   = flag.String("value", "", "value for write")
	)
	flag.Parse()

	if *cmd == "" {
		fmt.Fprintln(os.Stderr, "floydctl: -command is required")
		os.Exit(1)
	}

	c := client.New(*address)

	switch *cmd {
	case "write":
		if err := c.Write(*key, *value); err != nil {
			fail(err)
		}
	case "delete":
		if err := c.Delete(*key); err != nil {
			fail(err)
		}
	case "read":
		v, err := c.Read(*key)
		if err != nil {
			fail(err)
		}
		fmt.Println(v)
	case "dirty-read":
		v, err := c.DirtyRead(*key)
		if err != nil {
			fail(err)
		}
		fmt.Println(v)
	case "read-all":
		all, err := c.ReadAll()
		if err != nil {
			fail(err)
		}
		for _, kv := range all {
			fmt.Printf("%s=%s\n", kv.Key, kv.Value)
		}
	case "leader":
		id, err := c.GetLeader()
		if err != nil {
			fail(err)
		}
		fmt.Println(id)
	case "status":
		st, err := c.Status()
		if err != nil {
			fail(err)
		}
		fmt.Printf("role=%s leader=%s term=%d commit_index=%d halted=%t\n",
			st.Role, st.LeaderID, st.Term, st.CommitIndex, st.Halted)
		for _, p := range st.Peers {
			fmt.Printf("  peer=%s next_index=%d match_index=%d have_vote=%t last_contact=%s\n",
				p.ID, p.NextIndex, p.MatchIndex, p.HaveVote, p.LastContact)
		}
	default:
		fmt.Fprintf(os.Stderr, "floydctl: unknown command %q\n", *cmd)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "floydctl: %v\n", err)
	os.Exit(1)
}
