package sharding

import "sort"

type ShardRouter struct {
	ShardCount int // Number of shards
}

func NewShardRouter(shardCount int) *ShardRouter {
	if shardCount < 1 {
		shardCount = 1
	}
	return &ShardRouter{ShardCount: shardCount}
}

func (r *ShardRouter) GetShard(id int64) int {
	shardIndex := id % int64(r.ShardCount)
	if shardIndex < 0 {
		shardIndex = -shardIndex
	}
	return int(shardIndex)
}

// ShardsFor returns the distinct shards owning ids in ascending order.
// Callers taking one lock per shard must acquire them in this order.
func (r *ShardRouter) ShardsFor(ids []int64) []int {
	seen := make(map[int]struct{}, len(ids))
	shards := make([]int, 0, len(ids))
	for _, id := range ids {
		s := r.GetShard(id)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		shards = append(shards, s)
	}
	sort.Ints(shards)
	return shards
}
