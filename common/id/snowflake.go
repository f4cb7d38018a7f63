package id

import (
	"errors"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Node IDs per process. Each process generating IDs needs its own node.
const (
	NodeServer int64 = 1
	NodeWorker int64 = 2
)

var (
	node *snowflake.Node
	once sync.Once
)

// Generator produces new unique IDs. Services take one so tests can supply
// deterministic sequences.
type Generator func() int64

// Init initializes the Snowflake node with the given node ID.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered and unique across distributed instances.
// Init must have been called.
func New() int64 {
	return node.Generate().Int64()
}

// ErrNotInitialized is returned by Ready before Init succeeded.
var ErrNotInitialized = errors.New("id generator not initialized")

// Ready reports whether Init has been called successfully.
func Ready() error {
	if node == nil {
		return ErrNotInitialized
	}
	return nil
}
