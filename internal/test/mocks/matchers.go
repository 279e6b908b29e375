package mocks

import (
	"fmt"

	"github.com/golang/mock/gomock"

	"github.com/angeloszaimis/replica-failover/internal/replica"
)

type replicaIndex int

// ReplicaAt matches a replica.Replica by its position in the set.
func ReplicaAt(index int) gomock.Matcher {
	return replicaIndex(index)
}

func (m replicaIndex) Matches(x interface{}) bool {
	r, ok := x.(replica.Replica)
	return ok && r.Index == int(m)
}

func (m replicaIndex) String() string {
	return fmt.Sprintf("is replica %d", int(m))
}
