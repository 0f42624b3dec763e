package memory_test

import (
	"testing"

	"github.com/favbox/chainkit/store/memory"
	"github.com/favbox/chainkit/store/storetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.RunContract(t, memory.New())
}
