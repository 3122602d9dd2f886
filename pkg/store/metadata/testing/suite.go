package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittons/pkg/store/metadata"
)

// StoreTestSuite is a conformance suite for NodeStore implementations.
// It tests the interface contract only, so every backend runs the same cases.
//
// Usage:
//
//	func TestMyNodeStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func(t *testing.T) metadata.NodeStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. Stores are
	// closed by the suite.
	NewStore func(t *testing.T) metadata.NodeStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Lookup", suite.RunLookupTests)
	t.Run("Commit", suite.RunCommitTests)
	t.Run("Listing", suite.RunListingTests)
	t.Run("Accounting", suite.RunAccountingTests)
	t.Run("Reap", suite.RunReapTests)
}

func (suite *StoreTestSuite) newStore(t *testing.T) metadata.NodeStore {
	t.Helper()
	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testContext() context.Context {
	return context.Background()
}
