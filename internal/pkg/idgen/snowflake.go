package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Initialize sets up the Snowflake ID generator with a node ID
func Initialize(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// RandomID returns a unique int64, used as the random_id of outgoing Telegram messages
func RandomID() int64 {
	if node == nil {
		// Initialize with default node ID if not already initialized
		_ = Initialize(1)
	}
	return node.Generate().Int64()
}

// ParseDiscordID converts a Discord snowflake string to its integer form
func ParseDiscordID(id string) (int64, error) {
	sf, err := snowflake.ParseString(id)
	if err != nil {
		return 0, fmt.Errorf("invalid discord id %q: %w", id, err)
	}
	return sf.Int64(), nil
}

// FormatDiscordID converts an integer Discord id back to the string form the API expects
func FormatDiscordID(id int64) string {
	return snowflake.ParseInt64(id).String()
}
